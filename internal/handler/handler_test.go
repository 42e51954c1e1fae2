package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"

	"templeops/internal/clock"
	"templeops/internal/middleware"
	"templeops/internal/model"
)

var (
	testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	managerActor = &model.Actor{ID: "manager-1", Name: "Temple Manager", Role: model.RoleManager}
)

// newRouter подставляет актора так, как это делает LoadActor
func newRouter(actor *model.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if actor != nil {
			c.Set(middleware.UserIDKey, actor.ID)
			c.Set(middleware.ActorKey, actor)
		}
		c.Next()
	})
	return r
}

func testClock() clock.Clock {
	return clock.NewManual(testNow)
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	switch b := body.(type) {
	case nil:
		return serve(r, newJSONRequest(method, path, ""))
	case string:
		return serve(r, newJSONRequest(method, path, b))
	default:
		raw, _ := json.Marshal(b)
		return serve(r, newJSONRequest(method, path, string(raw)))
	}
}

func newJSONRequest(method, path, body string) *http.Request {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode[T any](resp *httptest.ResponseRecorder) T {
	var out T
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	return out
}
