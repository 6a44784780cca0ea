package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"bildset/pkg/bildset"
)

//go:embed assets/generator.tmpl
var generatorTmpl string

//go:embed assets/runs.tmpl
var runsTmpl string

// Generator is the placeholder-image generator app: a prompt form plus a
// training-data upload form, backed by the run store.
type Generator struct {
	cfg   *bildset.Config
	store *bildset.Store
	index *bildset.RunIndex

	page     *template.Template
	runsPage *template.Template
}

// NewGenerator builds the generator app around a run store.
func NewGenerator(cfg *bildset.Config, store *bildset.Store, index *bildset.RunIndex) (*Generator, error) {
	page, err := template.New("generator").Parse(generatorTmpl)
	if err != nil {
		return nil, err
	}
	runsPage, err := template.New("runs").Parse(runsTmpl)
	if err != nil {
		return nil, err
	}

	return &Generator{cfg: cfg, store: store, index: index, page: page, runsPage: runsPage}, nil
}

// Routes installs the generator's handlers on a gin engine.
func (g *Generator) Routes(r *gin.Engine) {
	r.GET("/", g.Index)
	r.POST("/generate", g.Generate)
	r.GET("/image.png", g.ImagePNG)
	r.POST("/train", g.Train)
	r.GET("/runs", g.Runs)
}

type generatorPage struct {
	Flash          *flash
	Prompt         string
	GeneratedImage template.URL
	TrainStatus    string
}

// Index renders the generator's form page.
func (g *Generator) Index(c *gin.Context) {
	renderPage(c, g.page, generatorPage{
		Flash:       flashFromQuery(c),
		TrainStatus: c.Query("status"),
	})
}

// Generate synthesizes a placeholder image for the submitted prompt and
// renders it inline.
func (g *Generator) Generate(c *gin.Context) {
	prompt := c.PostForm("prompt")
	if prompt == "" {
		flashRedirect(c, "/", "error", "Please provide a prompt to generate an image.")
		return
	}

	img := bildset.Synthesize(prompt, bildset.RenderOpts{Width: g.cfg.ImageWidth, Height: g.cfg.ImageHeight})
	bs, err := bildset.EncodePNG(img)
	if err != nil {
		flashRedirect(c, "/", "error", "Image rendering failed: %v", err)
		return
	}

	renderPage(c, g.page, generatorPage{
		Flash:          &flash{Message: "Image created below.", Kind: "success"},
		Prompt:         prompt,
		GeneratedImage: template.URL(dataURI(bs)),
	})
}

// ImagePNG serves a synthesized image as a PNG download.
func (g *Generator) ImagePNG(c *gin.Context) {
	prompt := c.Query("prompt")
	img := bildset.Synthesize(prompt, bildset.RenderOpts{Width: g.cfg.ImageWidth, Height: g.cfg.ImageHeight})
	bs, err := bildset.EncodePNG(img)
	if err != nil {
		c.String(http.StatusInternalServerError, "render failed: %v", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="generated.png"`)
	c.Data(http.StatusOK, "image/png", bs)
}

// Train accepts an images archive plus either a keywords archive or a
// comma-separated vocabulary, pairs the contents, and stores the result
// as a new training run.
func (g *Generator) Train(c *gin.Context) {
	images, name, ok, err := formFileBytes(c, "dataset")
	if err != nil {
		flashRedirect(c, "/", "error", "Reading the upload failed: %v", err)
		return
	}
	if !ok || name == "" {
		flashRedirect(c, "/", "error", "Upload a ZIP file to start training.")
		return
	}

	keywords, _, hasKeywords, err := formFileBytes(c, "keyword_files")
	if err != nil {
		flashRedirect(c, "/", "error", "Reading the upload failed: %v", err)
		return
	}

	vocab := bildset.ParseVocabulary(c.PostForm("keywords"))

	descriptions := map[string]string{}
	if dj := c.PostForm("descriptions"); dj != "" {
		if err := json.Unmarshal([]byte(dj), &descriptions); err != nil {
			flashRedirect(c, "/", "error", "Descriptions JSON could not be parsed. Check the formatting.")
			return
		}
	}

	var kwZip []byte
	if hasKeywords {
		kwZip = keywords
	}

	ds, err := bildset.UnpackDataset(images, kwZip)
	if err != nil {
		var ae *bildset.ArchiveError
		var ee *bildset.EmptyDatasetError
		switch {
		case errors.As(err, &ae):
			flashRedirect(c, "/", "error", "Could not read that ZIP file. Please re-upload.")
		case errors.As(err, &ee):
			flashRedirect(c, "/", "error", "The upload contained no images.")
		default:
			flashRedirect(c, "/", "error", "Unpacking failed: %v", err)
		}
		return
	}
	defer func() {
		if err := ds.Close(); err != nil {
			klog.Warningf("cleanup failed: %v", err)
		}
	}()

	// Without a keywords archive, the vocabulary fills in keyword text
	// for any basename it matches.
	if !hasKeywords && len(vocab) > 0 {
		bildset.FillKeywords(ds, vocab)
	}

	meta, err := g.store.Write(&bildset.Run{
		Pairs:        ds.Pairs,
		Missing:      ds.Missing,
		Vocabulary:   vocab,
		Descriptions: descriptions,
	})
	if err != nil {
		flashRedirect(c, "/", "error", "Storing the run failed: %v", err)
		return
	}

	status := url.QueryEscape(
		"Training data prepared with " + plural(len(meta.Basenames), "image") +
			" (" + plural(len(meta.MissingKeywords), "missing keyword file") + "). Data stored at " +
			g.store.RunDir(meta.RunID) + ".")
	c.Redirect(http.StatusSeeOther, "/?kind=success&msg="+url.QueryEscape("Run "+meta.RunID+" stored.")+"&status="+status)
}

type runsPage struct {
	Flash *flash
	Runs  []bildset.RunMeta
}

// Runs lists stored training runs, newest first.
func (g *Generator) Runs(c *gin.Context) {
	renderPage(c, g.runsPage, runsPage{
		Flash: flashFromQuery(c),
		Runs:  g.index.Runs(),
	})
}
