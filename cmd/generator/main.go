// generator serves the placeholder-image generator and training-data
// preparation web app.
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
		c.GeneratorAddr = *addr
	}
	if *dataDir != "" {
		c.DataDir = *dataDir
	}

	store, err := bildset.NewStore(c.DataDir)
	if err != nil {
		klog.Exitf("store failed: %v", err)
	}

	index, err := bildset.NewRunIndex(store)
	if err != nil {
		klog.Exitf("run index failed: %v", err)
	}
	defer index.Close()

	if err := index.Watch(); err != nil {
		klog.Exitf("watch failed: %v", err)
	}

	g, err := web.NewGenerator(c, store, index)
	if err != nil {
		klog.Exitf("generator failed: %v", err)
	}

	r := gin.Default()
	g.Routes(r)

	klog.Infof("Listening on %s...", c.GeneratorAddr)
	if err := r.Run(c.GeneratorAddr); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}
