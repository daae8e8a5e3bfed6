package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joeychilson/emojicoach/pkg/predict"
)

// pageData is rendered by templates/index.html
type pageData struct {
	Title       string
	Description string
	Text        string
	K           int
	MinK        int
	MaxK        int
	Result      string
	Error       string
	Examples    []string
}

// PredictRequest is the body of POST /api/predict
type PredictRequest struct {
	Text string `json:"text"`
	K    *int   `json:"k,omitempty"`
}

// PredictResponse is returned by POST /api/predict
type PredictResponse struct {
	Emojis    string             `json:"emojis"`
	Reactions []predict.Reaction `json:"reactions"`
}

// index renders the form. A submitted form or a ?text= query runs a prediction.
func (s *Server) index(c *gin.Context) {
	data := pageData{
		Title:       title,
		Description: description,
		K:           predict.DefaultK,
		MinK:        predict.MinK,
		MaxK:        predict.MaxK,
		Examples:    examples,
	}

	text, submitted := c.GetPostForm("text")
	rawK := c.PostForm("k")
	if !submitted {
		text, submitted = c.GetQuery("text")
		rawK = c.Query("k")
	}
	if !submitted {
		c.HTML(http.StatusOK, "index.html", data)
		return
	}
	data.Text = text

	k, err := parseK(rawK)
	if err == nil {
		err = predict.ValidateK(k)
	}
	if err != nil {
		data.Error = err.Error()
		c.HTML(http.StatusBadRequest, "index.html", data)
		return
	}
	data.K = k

	reactions, err := s.reactions(c.Request.Context(), text, k)
	if err != nil {
		s.logError(c, err)
		data.Error = err.Error()
		c.HTML(statusFor(err), "index.html", data)
		return
	}

	data.Result = predict.Join(reactions)
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) apiPredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	k := predict.DefaultK
	if req.K != nil {
		k = *req.K
	}

	reactions, err := s.reactions(c.Request.Context(), req.Text, k)
	if err != nil {
		s.logError(c, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Emojis:    predict.Join(reactions),
		Reactions: reactions,
	})
}
