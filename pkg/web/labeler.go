package web

import (
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"bildset/pkg/bildset"
)

//go:embed assets/labeler.tmpl
var labelerTmpl string

// sessionCookie names the labeler's session cookie.
const sessionCookie = "bildset_session"

// sessionStore holds live labeling sessions keyed by cookie value.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*bildset.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*bildset.Session{}}
}

// get returns the session for a cookie value, creating one as needed.
func (st *sessionStore) get(id string) *bildset.Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		return s
	}

	s := bildset.NewSession()
	st.sessions[s.ID] = s
	return s
}

// Labeler is the image labeling app: dataset upload, vocabulary entry,
// auto and manual labeling, and pair-format export.
type Labeler struct {
	cfg      *bildset.Config
	sessions *sessionStore
	page     *template.Template
}

// NewLabeler builds the labeler app.
func NewLabeler(cfg *bildset.Config) (*Labeler, error) {
	page, err := template.New("labeler").Parse(labelerTmpl)
	if err != nil {
		return nil, err
	}

	return &Labeler{cfg: cfg, sessions: newSessionStore(), page: page}, nil
}

// Routes installs the labeler's handlers on a gin engine.
func (l *Labeler) Routes(r *gin.Engine) {
	r.GET("/", l.Index)
	r.POST("/upload-dataset", l.UploadDataset)
	r.POST("/upload-keywords", l.UploadKeywords)
	r.POST("/auto-label", l.AutoLabel)
	r.POST("/label", l.Label)
	r.GET("/export/images.zip", l.ExportImages)
	r.GET("/export/keywords.zip", l.ExportKeywords)
}

// session returns the request's session, setting the cookie on first use.
func (l *Labeler) session(c *gin.Context) *bildset.Session {
	id, _ := c.Cookie(sessionCookie)
	s := l.sessions.get(id)
	if s.ID != id {
		c.SetCookie(sessionCookie, s.ID, 0, "/", "", false, true)
	}
	return s
}

type labelerPage struct {
	Flash          *flash
	ImageCount     int
	KeywordCount   int
	Keywords       []string
	CurrentIndex   int
	CurrentName    string
	CurrentPreview template.URL
	ManualComplete bool
}

// Index renders the labeler page: counts, the current image with a
// preview, and the keyword checkboxes.
func (l *Labeler) Index(c *gin.Context) {
	s := l.session(c)

	page := labelerPage{
		Flash:          flashFromQuery(c),
		ImageCount:     len(s.Images),
		KeywordCount:   len(s.Vocabulary),
		Keywords:       s.Vocabulary,
		CurrentIndex:   s.Cursor + 1,
		ManualComplete: s.Complete(),
	}

	if img, ok := s.Current(); ok {
		page.CurrentName = img.Name
		uri, err := previewURI(img.Path)
		if err != nil {
			klog.Warningf("preview %s: %v", img.Path, err)
		} else {
			page.CurrentPreview = template.URL(uri)
		}
	}

	renderPage(c, l.page, page)
}

// UploadDataset loads a ZIP of images into the session.
func (l *Labeler) UploadDataset(c *gin.Context) {
	s := l.session(c)

	bs, name, ok, err := formFileBytes(c, "dataset")
	if err != nil {
		flashRedirect(c, "/", "error", "Reading the upload failed: %v", err)
		return
	}
	if !ok || name == "" {
		flashRedirect(c, "/", "error", "Please choose a ZIP file.")
		return
	}

	n, err := s.LoadDataset(bs)
	if err != nil {
		var ae *bildset.ArchiveError
		var ee *bildset.EmptyDatasetError
		switch {
		case errors.As(err, &ae):
			flashRedirect(c, "/", "error", "Could not read that ZIP file. Please try again.")
		case errors.As(err, &ee):
			flashRedirect(c, "/", "error", "The upload contained no images.")
		default:
			flashRedirect(c, "/", "error", "Loading failed: %v", err)
		}
		return
	}

	flashRedirect(c, "/", "success", "Loaded %s.", plural(n, "image"))
}

// UploadKeywords stores the session's keyword vocabulary.
func (l *Labeler) UploadKeywords(c *gin.Context) {
	s := l.session(c)
	n := s.SetVocabulary(c.PostForm("keywords"))
	flashRedirect(c, "/", "success", "Stored %s.", plural(n, "keyword"))
}

// AutoLabel labels every loaded image against the vocabulary and saves
// the assignment JSON.
func (l *Labeler) AutoLabel(c *gin.Context) {
	s := l.session(c)
	if len(s.Images) == 0 || len(s.Vocabulary) == 0 {
		flashRedirect(c, "/", "error", "Upload a dataset and keywords before running auto labeling.")
		return
	}

	labels := s.AutoLabelAll()
	path, err := bildset.WriteLabels(l.cfg.DataDir, "auto-labels", labels)
	if err != nil {
		flashRedirect(c, "/", "error", "Saving labels failed: %v", err)
		return
	}

	flashRedirect(c, "/", "success", "Auto labels saved to %s", path)
}

// Label records the checkbox selections for the current image and
// advances to the next; the full assignment is saved once every image
// has been visited.
func (l *Labeler) Label(c *gin.Context) {
	s := l.session(c)

	if len(s.Images) == 0 {
		flashRedirect(c, "/", "error", "Upload a dataset first.")
		return
	}
	if len(s.Vocabulary) == 0 {
		flashRedirect(c, "/", "error", "Add your keyword list to continue.")
		return
	}
	if s.Complete() {
		flashRedirect(c, "/", "success", "All images are already labeled.")
		return
	}

	done := s.LabelCurrent(c.PostFormArray("labels"))
	if !done {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	path, err := bildset.WriteLabels(l.cfg.DataDir, "manual-labels", s.Labels)
	if err != nil {
		flashRedirect(c, "/", "error", "Saving labels failed: %v", err)
		return
	}

	flashRedirect(c, "/", "success", "Saved labels to %s. Export the pair archives below.", path)
}

// export packs the session into the two pair archives and serves one.
func (l *Labeler) export(c *gin.Context, images bool) {
	s := l.session(c)
	if len(s.Images) == 0 {
		flashRedirect(c, "/", "error", "Upload a dataset first.")
		return
	}

	imagesZip, keywordsZip, err := bildset.Pack(s.ExportPairs())
	if err != nil {
		flashRedirect(c, "/", "error", "Export failed: %v", err)
		return
	}

	name, bs := "keywords.zip", keywordsZip
	if images {
		name, bs = "images.zip", imagesZip
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", bs)
}

// ExportImages downloads the images half of the pair archives.
func (l *Labeler) ExportImages(c *gin.Context) {
	l.export(c, true)
}

// ExportKeywords downloads the keyword-text half of the pair archives.
func (l *Labeler) ExportKeywords(c *gin.Context) {
	l.export(c, false)
}
