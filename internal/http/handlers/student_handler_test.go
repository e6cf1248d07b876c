package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStudentHandler_Enroll_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &StudentHandler{}
	r.POST("/student/courses/:id/enroll", handler.Enroll)

	courseID := uuid.New()
	req, _ := http.NewRequest("POST", "/student/courses/"+courseID.String()+"/enroll", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentHandler_CompleteModule_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &StudentHandler{}
	r.POST("/student/courses/:id/modules/:moduleID/complete", handler.CompleteModule)

	req, _ := http.NewRequest("POST", "/student/courses/"+uuid.NewString()+"/modules/"+uuid.NewString()+"/complete", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentHandler_Dashboard_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &StudentHandler{}
	r.GET("/student/dashboard", handler.Dashboard)

	req, _ := http.NewRequest("GET", "/student/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
