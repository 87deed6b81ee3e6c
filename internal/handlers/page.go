package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/pipeline"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/gin-gonic/gin"
)

type tallyRow struct {
	Label fruit.Label
	Emoji string
	Color string
	Count int
}

type pageData struct {
	Error     string
	Result    *pipeline.Result
	Thumbnail template.URL
	Info      string
	FunFact   string
	Tally     []tallyRow
	Total     int
}

func newPageData(sess *session.Session, errMsg string) pageData {
	data := pageData{Error: errMsg}

	if res, ok := sess.Last().(*pipeline.Result); ok && res != nil {
		data.Result = res
		// Thumbnails are built by the pipeline as image/jpeg data URIs.
		data.Thumbnail = template.URL(res.Thumbnail)
		data.Info = fruit.Info(res.Prediction.Label)
		data.FunFact = fruit.FunFact(res.Prediction.Label)
	}

	for i, e := range sess.Tally.Snapshot() {
		data.Tally = append(data.Tally, tallyRow{
			Label: e.Label,
			Emoji: fruit.Emoji(e.Label),
			Color: fruit.Color(i),
			Count: e.Count,
		})
		data.Total += e.Count
	}
	return data
}

func (h *Handler) render(c *gin.Context, sess *session.Session, errMsg string) {
	status := http.StatusOK
	if errMsg != "" {
		status = http.StatusUnprocessableEntity
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, newPageData(sess, errMsg)); err != nil {
		h.logger.Errorw("Failed to render page", "error", err)
		c.String(http.StatusInternalServerError, "Failed to render page")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
