package semver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SpatiumPortae/xfer/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		t.Run("basic", func(t *testing.T) {
			s := "v0.0.1"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
		t.Run("double digits", func(t *testing.T) {
			s := "v10.24.30"
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		})
	})
	t.Run("negative", func(t *testing.T) {
		t.Run("no leading v", func(t *testing.T) {
			s := "0.0.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("major leading 0", func(t *testing.T) {
			s := "v01.0.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("minor leading 0", func(t *testing.T) {
			s := "v0.01.1"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("patch leading 0", func(t *testing.T) {
			s := "v0.1.01"
			_, err := semver.Parse(s)
			assert.Equal(t, semver.ErrParse, err)
		})
		t.Run("overflow", func(t *testing.T) {
			_, err := semver.Parse("v99999999999999999999.0.0")
			assert.ErrorIs(t, err, semver.ErrParse)
		})
	})
}

func TestLess(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		less bool
	}{
		{"v1.1.1", "v2.0.0", true},
		{"v1.1.1", "v0.9.9", false},
		{"v1.1.1", "v1.2.0", true},
		{"v1.1.1", "v1.0.9", false},
		{"v1.1.1", "v1.1.2", true},
		{"v1.1.1", "v1.1.0", false},
		{"v1.1.1", "v1.1.1", false},
	} {
		a, err := semver.Parse(tc.a)
		require.NoError(t, err)
		b, err := semver.Parse(tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.less, a.Less(b), "%s < %s", tc.a, tc.b)
	}
}

func TestCompatible(t *testing.T) {
	sv, err := semver.Parse("v1.4.2")
	assert.Nil(t, err)
	for s, expected := range map[string]bool{
		"v1.4.2": true,
		"v1.0.0": true,
		"v1.9.9": true,
		"v0.4.2": false,
		"v2.0.0": false,
	} {
		other, err := semver.Parse(s)
		assert.Nil(t, err)
		assert.Equal(t, expected, sv.Compatible(other), s)
	}
}

func TestGetServerVersion(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/version", r.URL.Path)
			json.NewEncoder(w).Encode(semver.Version{Major: 1, Minor: 2, Patch: 3})
		}))
		defer srv.Close()

		ver, err := semver.GetServerVersion(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
		assert.Nil(t, err)
		assert.Equal(t, "v1.2.3", ver.String())
	})
	t.Run("negative", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := semver.GetServerVersion(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
		assert.Error(t, err)
	})
}
