package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/yearslide"
	"github.com/trezcool/kodomo/testutil"
)

func executeBody(targetYear int, confirmed bool) []byte {
	return []byte(fmt.Sprintf(`{"nurseryId": 1, "targetYear": %d, "confirmed": %t, "notes": "see you in april"}`, targetYear, confirmed))
}

func decodeResult(t *testing.T, resp envelope) yearslide.Result {
	var res yearslide.Result
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	return res
}

func Test_yearSlideApi_preview(t *testing.T) {
	app := newTestApp(t)

	p, err := app.svcs.Slides.Preview(context.Background(), nurseryID, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, p.AffectedChildrenCount)
	assert.Equal(t, 1, p.AffectedStaffCount)

	app.runAll(t, []httpTest{
		{name: "auth required", path: "/api/year-slide/preview?nurseryId=1&targetYear=2025", wantCode: http.StatusUnauthorized},
		{
			name: "other nursery", path: "/api/year-slide/preview?nurseryId=1&targetYear=2025", token: app.strangerToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "targetYear required", path: "/api/year-slide/preview?nurseryId=1", token: app.teacherToken,
			wantCode:   http.StatusBadRequest,
			wantErrors: []core.FieldError{{Field: "targetYear", Error: "this field is required"}},
		},
		{
			name: "not the future year", path: "/api/year-slide/preview?nurseryId=1&targetYear=2026", token: app.teacherToken,
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "invalid target year 2026: it is not the registered future academic year",
		},
		{
			name: "not configured", path: "/api/year-slide/preview?nurseryId=2&targetYear=2025", token: app.adminToken,
			wantCode: http.StatusNotFound,
		},
		{name: "preview", path: "/api/year-slide/preview?nurseryId=1&targetYear=2025", token: app.teacherToken, wantData: marshallObj(t, p)},
	})
}

func Test_yearSlideApi_execute(t *testing.T) {
	app := newTestApp(t)
	path := "/api/year-slide/execute"

	app.runAll(t, []httpTest{
		{
			name: "director required", method: http.MethodPost, path: path, token: app.teacherToken,
			body: executeBody(2025, true), wantCode: http.StatusForbidden,
		},
		{
			name: "other nursery", method: http.MethodPost, path: path, token: app.strangerToken,
			body: executeBody(2025, true), wantCode: http.StatusForbidden,
		},
		{
			name: "targetYear required", method: http.MethodPost, path: path, token: app.directorToken,
			body: []byte(`{"nurseryId": 1, "confirmed": true}`), wantCode: http.StatusBadRequest,
			wantErrors: []core.FieldError{{Field: "targetYear", Error: "this field is required"}},
		},
		{
			name: "wrong target", method: http.MethodPost, path: path, token: app.directorToken,
			body: executeBody(2026, true), wantCode: http.StatusUnprocessableEntity,
			wantMessage: "invalid target year 2026: it is not the registered future academic year",
		},
	})

	t.Run("not confirmed", func(t *testing.T) {
		resp := app.run(t, httpTest{
			method: http.MethodPost, path: path, token: app.directorToken, body: executeBody(2025, false),
			wantCode: http.StatusPreconditionFailed, wantMessage: "the year slide must be confirmed before it is executed",
		})
		res := decodeResult(t, resp)
		assert.False(t, res.Success)
		assert.Equal(t, "the year slide must be confirmed before it is executed", res.ErrorMessage.String)

		cur, err := app.svcs.Years.GetCurrent(context.Background(), nurseryID)
		require.NoError(t, err)
		assert.Equal(t, 2024, cur.Year)
	})

	t.Run("confirmed", func(t *testing.T) {
		// the token subject is recorded, whatever the body says
		body := []byte(`{"nurseryId": 1, "targetYear": 2025, "confirmed": true, "executedByUserId": 99, "notes": "see you in april"}`)
		resp := app.run(t, httpTest{
			method: http.MethodPost, path: path, token: app.directorToken, body: body,
			wantMessage: "academic year 2025 is now the current year",
		})
		res := decodeResult(t, resp)
		assert.True(t, res.Success)
		assert.Equal(t, 2024, res.PreviousYear)
		assert.Equal(t, 2025, res.NewYear)
		assert.Equal(t, 1, res.SlidedChildrenCount)
		assert.Equal(t, 1, res.SlidedStaffCount)
		assert.Equal(t, 1, res.ExecutedByUserID)
		assert.Equal(t, "see you in april", res.Notes.String)
		assert.False(t, res.ErrorMessage.Valid)

		app.run(t, httpTest{
			path: "/api/academic-years/current?nurseryId=1", token: app.teacherToken,
			wantData: marshallObj(t, mustGetCurrent(t, app)),
		})
	})

	t.Run("slided once", func(t *testing.T) {
		app.run(t, httpTest{
			method: http.MethodPost, path: path, token: app.directorToken, body: executeBody(2025, true),
			wantCode:    http.StatusUnprocessableEntity,
			wantMessage: "invalid target year 2025: it must come after the current academic year 2025",
		})
	})

	t.Run("history", func(t *testing.T) {
		resp := app.run(t, httpTest{path: "/api/year-slide/history?nurseryId=1", token: app.teacherToken})
		var logs []yearslide.Result
		require.NoError(t, json.Unmarshal(resp.Data, &logs))
		require.Len(t, logs, 3) // wrong target, success, slided once

		var succeeded int
		for _, l := range logs {
			if l.Success {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded)
	})
}

func Test_yearSlideApi_execute_onBehalf(t *testing.T) {
	app := newTestApp(t)

	resp := app.run(t, httpTest{
		method: http.MethodPost, path: "/api/year-slide/execute", token: app.adminToken,
		body:        []byte(`{"nurseryId": 1, "targetYear": 2025, "confirmed": true, "executedByUserId": 1}`),
		wantMessage: "academic year 2025 is now the current year",
	})
	assert.Equal(t, 1, decodeResult(t, resp).ExecutedByUserID)
}

func Test_yearSlideApi_execute_overCapacity(t *testing.T) {
	app := newTestApp(t)

	ids := make([]int, 0, 24)
	for id := 100; id < 124; id++ {
		app.svcs.Memory.SaveChildren(testutil.Child(nurseryID, id, fmt.Sprintf("child %d", id)))
		ids = append(ids, id)
	}
	testutil.AssignChildren(t, app.svcs.Memory, nurseryID, 2025, "sakura", ids...)

	resp := app.run(t, httpTest{path: "/api/year-slide/preview?nurseryId=1&targetYear=2025", token: app.directorToken})
	var p yearslide.Preview
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, 25, p.AffectedChildrenCount)
	assert.Contains(t, p.Warnings, "class sakura (sakura) exceeds its capacity: 25 children for 20 places")

	// warnings never block the slide
	resp = app.run(t, httpTest{
		method: http.MethodPost, path: "/api/year-slide/execute", token: app.directorToken, body: executeBody(2025, true),
	})
	res := decodeResult(t, resp)
	assert.True(t, res.Success)
	assert.Equal(t, 25, res.SlidedChildrenCount)
}

func mustGetCurrent(t *testing.T, app *testApp) interface{} {
	cur, err := app.svcs.Years.GetCurrent(context.Background(), nurseryID)
	require.NoError(t, err)
	require.Equal(t, 2025, cur.Year)
	return cur
}
