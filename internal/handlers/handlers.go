package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/fruitlens/fruit-classifier/internal/chart"
	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/fruitlens/fruit-classifier/internal/model"
	"github.com/fruitlens/fruit-classifier/internal/pipeline"
	"github.com/fruitlens/fruit-classifier/internal/preprocess"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/fruitlens/fruit-classifier/web"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionCookie = "fruit_session"

type Handler struct {
	pipeline *pipeline.Pipeline
	sessions *session.Store
	logger   *zap.SugaredLogger
	page     *template.Template
	static   fs.FS
}

func NewHandler(p *pipeline.Pipeline, sessions *session.Store, logger *zap.SugaredLogger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	page, err := template.ParseFS(web.FS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static assets: %w", err)
	}
	return &Handler{
		pipeline: p,
		sessions: sessions,
		logger:   logger,
		page:     page,
		static:   static,
	}, nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.pipeline.Model.Loaded(),
		"sessions":     h.sessions.Len(),
	})
}

// Predict classifies a raw (1, 224, 224, 3) float tensor sent as JSON. It
// does not touch any session tally.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if len(req.Image) != preprocess.Len {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected %d values, got %d", preprocess.Len, len(req.Image))})
		return
	}
	for _, v := range req.Image {
		if v < 0 || v > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Values must lie in [0, 1]"})
			return
		}
	}

	classifier, err := h.pipeline.Model.Get()
	if err != nil {
		h.writeError(c, err)
		return
	}
	pred, dist, err := classifier.Classify(preprocess.Tensor{Shape: preprocess.Shape, Data: req.Image})
	if err != nil {
		h.logger.Errorw("Prediction error", "error", err)
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewPredictionResponse(pred, dist))
}

// PredictFromImage classifies a multipart upload and answers with JSON. It
// does not touch any session tally.
func (h *Handler) PredictFromImage(c *gin.Context) {
	data, filename, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}

	img, err := imagesource.FromUpload(data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Debugw("Received file", "filename", filename, "format", img.Format, "width", img.Width, "height", img.Height)

	tensor, err := preprocess.ToTensor(img.Image)
	if err != nil {
		h.writeError(c, err)
		return
	}
	classifier, err := h.pipeline.Model.Get()
	if err != nil {
		h.writeError(c, err)
		return
	}
	pred, dist, err := classifier.Classify(tensor)
	if err != nil {
		h.logger.Errorw("Prediction error", "error", err)
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewPredictionResponse(pred, dist))
}

// Index renders the page. A ?url= query classifies that URL first, the way
// links into the page worked in the original app.
func (h *Handler) Index(c *gin.Context) {
	sess := h.session(c)
	if url := strings.TrimSpace(c.Query("url")); url != "" {
		h.classifyAndRender(c, sess, imagesource.Input{URL: url})
		return
	}
	h.render(c, sess, "")
}

// ClassifyForm handles the page form and the drag and drop script.
func (h *Handler) ClassifyForm(c *gin.Context) {
	sess := h.session(c)
	in, err := readInput(c)
	if err != nil {
		h.render(c, sess, err.Error())
		return
	}
	h.classifyAndRender(c, sess, in)
}

func (h *Handler) classifyAndRender(c *gin.Context, sess *session.Session, in imagesource.Input) {
	res, err := h.pipeline.Run(c.Request.Context(), sess, in)
	if err != nil {
		h.render(c, sess, pipeline.UserMessage(err))
		return
	}
	if res != nil {
		sess.SetLast(res)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Classify is the JSON flavour of ClassifyForm.
func (h *Handler) Classify(c *gin.Context) {
	sess := h.session(c)
	in, err := readInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide an image as multipart 'file' or an image 'url'"})
		return
	}

	res, err := h.pipeline.Run(c.Request.Context(), sess, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sess.SetLast(res)

	c.JSON(http.StatusOK, gin.H{
		"prediction": model.NewPredictionResponse(res.Prediction, res.Distribution),
		"info":       fruit.Info(res.Prediction.Label),
		"fun_fact":   fruit.FunFact(res.Prediction.Label),
		"tally":      res.Tally,
		"source":     res.Source,
	})
}

func (h *Handler) Tally(c *gin.Context) {
	sess := h.session(c)
	c.JSON(http.StatusOK, gin.H{
		"tally":    sess.Tally.Snapshot(),
		"by_count": sess.Tally.ByCount(),
		"total":    sess.Tally.Total(),
	})
}

func (h *Handler) Chart(c *gin.Context) {
	sess := h.session(c)
	width := queryInt(c, "w", chart.DefaultWidth, 2000)
	height := queryInt(c, "h", chart.DefaultHeight, 2000)

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := chart.WritePNG(c.Writer, sess.Tally.Snapshot(), width, height); err != nil {
		h.logger.Errorw("Failed to render chart", "error", err)
	}
}

// session returns the caller's session, starting one and setting the cookie
// when needed.
func (h *Handler) session(c *gin.Context) *session.Session {
	id, _ := c.Cookie(sessionCookie)
	sess, created := h.sessions.GetOrCreate(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, sess.ID, 0, "/", "", false, true)
		h.logger.Debugw("Session started", "session", sess.ID)
	}
	return sess
}

func (h *Handler) writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": pipeline.UserMessage(err), "details": err.Error()})
}

func statusFor(err error) int {
	switch {
	case imagesource.IsFetchError(err):
		return http.StatusBadGateway
	case imagesource.IsDecodeError(err):
		return http.StatusUnprocessableEntity
	case model.IsModelLoadError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readInput collects an upload or a URL from multipart, urlencoded or JSON
// bodies, falling back to the url query parameter.
func readInput(c *gin.Context) (imagesource.Input, error) {
	var in imagesource.Input
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return in, errors.New("Invalid JSON")
		}
		in.URL = strings.TrimSpace(body.URL)
		return in, nil
	}

	data, filename, err := readUpload(c)
	if err != nil {
		return in, err
	}
	in.Upload = data
	in.Filename = filename
	in.URL = strings.TrimSpace(c.PostForm("url"))
	if in.URL == "" {
		in.URL = strings.TrimSpace(c.Query("url"))
	}
	return in, nil
}

// readUpload returns the bytes of the "file" or "image" form field, or nil
// when neither is present.
func readUpload(c *gin.Context) ([]byte, string, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return nil, "", nil
	}
	header, err := c.FormFile("file")
	if err != nil {
		header, err = c.FormFile("image")
	}
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", errors.New("Failed to parse form")
	}
	if header.Size > imagesource.MaxUploadBytes {
		return nil, "", fmt.Errorf("File too large (max %d MB)", imagesource.MaxUploadBytes>>20)
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", errors.New("Failed to open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, imagesource.MaxUploadBytes))
	if err != nil {
		return nil, "", errors.New("Failed to read uploaded file")
	}
	if len(data) == 0 {
		return nil, "", nil
	}
	return data, header.Filename, nil
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
