// labeler serves the image labeling web app.
package main

import (
	"flag"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"bildset/pkg/bildset"
	"bildset/pkg/web"
)

var (
	configPath = flag.String("config", "", "Location of YAML config file")
	addr       = flag.String("addr", "", "host:port to bind to (overrides config)")
	dataDir    = flag.String("data", "", "Location of the data directory (overrides config)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := bildset.LoadConfig(*configPath)
	if err != nil {
		klog.Exitf("config failed: %v", err)
	}

	if *addr != "" {
		c.LabelerAddr = *addr
	}
	if *dataDir != "" {
		c.DataDir = *dataDir
	}

	l, err := web.NewLabeler(c)
	if err != nil {
		klog.Exitf("labeler failed: %v", err)
	}

	r := gin.Default()
	l.Routes(r)

	klog.Infof("Listening on %s...", c.LabelerAddr)
	if err := r.Run(c.LabelerAddr); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}
