package handler

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/cloudinary"
	"github.com/campusattend/attendance/internal/queue"
)

// ---------- Upload ----------

// Upload stores a capture frame and returns its public URL for use in /v1/mark.
// Accepts multipart "file" or JSON {"data": "<data URL>"}; "lecture" picks the folder.
func (h *Handler) Upload(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	ctx := c.Request.Context()

	var result *cloudinary.UploadResult
	var err error
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		result, err = h.cloud.UploadBytes(ctx, data, header.Filename, c.PostForm("lecture"))
	} else {
		var body struct {
			Data    string `json:"data" binding:"required"`
			Lecture string `json:"lecture"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		result, err = h.cloud.UploadBase64(ctx, body.Data, body.Lecture)
	}
	if err != nil {
		log.Printf("cloudinary upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       result.SecureURL,
		"public_id": result.PublicID,
		"width":     result.Width,
		"height":    result.Height,
		"bytes":     result.Bytes,
	})
}

// ---------- Students ----------

type studentRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// RegisterStudent adds a roster entry. 201 when new, 200 when it already existed.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, created, err := h.svc.RegisterStudent(c.Request.Context(), attendance.Student{
		StudentID: req.StudentID,
		Name:      req.Name,
		Email:     req.Email,
	})
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.svc.ListStudents(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if students == nil {
		students = []attendance.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.svc.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Enroll adds gallery images for an existing student.
func (h *Handler) Enroll(c *gin.Context) {
	var req struct {
		Images []string `json:"images" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.svc.Enroll(c.Request.Context(), c.Param("id"), req.Images)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": c.Param("id"), "enrolled": n})
}

// ---------- Mark ----------

type markRequest struct {
	StudentID    string   `json:"student_id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Lecture      string   `json:"lecture"`
	Frames       []string `json:"frames"`
	EnrollImages []string `json:"enroll_images"`
}

// Mark records attendance for whoever is recognized in the frames.
func (h *Handler) Mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.FromContext(c)

	res, err := h.svc.Mark(c.Request.Context(), attendance.MarkRequest{
		StudentID:    req.StudentID,
		Name:         req.Name,
		Email:        req.Email,
		Lecture:      req.Lecture,
		Frames:       req.Frames,
		EnrollImages: req.EnrollImages,
		DeviceID:     claims.Subject,
	})
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{
		"event":      res.Event,
		"student":    res.Student,
		"similarity": res.Match.Similarity,
		"registered": res.Registered,
	}
	if !res.Created {
		body["status"] = "already_marked"
		body["already_marked"] = true
		c.JSON(http.StatusOK, body)
		return
	}
	body["status"] = "marked"
	body["already_marked"] = false
	c.JSON(http.StatusCreated, body)
}

// ---------- Reports ----------

func (h *Handler) ListEvents(c *gin.Context) {
	f := attendance.EventFilter{
		StudentID: c.Query("student_id"),
		Lecture:   c.Query("lecture"),
		DeviceID:  c.Query("device_id"),
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	events, err := h.svc.ListEvents(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	if events == nil {
		events = []attendance.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Dashboard returns the aggregate report plus roster size.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	rep, err := h.svc.Report(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	students, err := h.svc.ListStudents(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": len(students), "report": rep})
}

func (h *Handler) Defaulters(c *gin.Context) {
	ds, err := h.svc.Defaulters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"defaulters": ds})
}

// RunNotifications queues one notice per current defaulter for the worker.
func (h *Handler) RunNotifications(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue not configured"})
		return
	}
	ctx := c.Request.Context()
	ds, err := h.svc.Defaulters(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	n, err := queue.PublishDefaulters(ctx, h.queue, ds)
	if err != nil {
		log.Printf("publish defaulter notices: %d of %d queued: %v", n, len(ds), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "queue publish failed", "queued": n})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}
