package mediapath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/errors"
)

func newTestResolver() *Resolver {
	return NewResolver(&conf.MediaConfig{
		Root:     "/srv/mousetube/media",
		TempRoot: "/srv/mousetube/temp",
	})
}

func TestResolve(t *testing.T) {
	r := newTestResolver()

	cases := []struct {
		name string
		link string
		want string
	}{
		{
			name: "absolute url with media prefix",
			link: "https://mousetube.pasteur.fr/media/sessions/42/call.wav",
			want: "/srv/mousetube/media/sessions/42/call.wav",
		},
		{
			name: "plain media path",
			link: "/media/sessions/42/call.wav",
			want: "/srv/mousetube/media/sessions/42/call.wav",
		},
		{
			name: "relative media path",
			link: "media/sessions/42/call.wav",
			want: "/srv/mousetube/media/sessions/42/call.wav",
		},
		{
			name: "temp staging path",
			link: "/temp/upload_8f3a/call.wav",
			want: "/srv/mousetube/temp/upload_8f3a/call.wav",
		},
		{
			name: "already local path",
			link: "/data/archive/call.wav",
			want: "/data/archive/call.wav",
		},
		{
			name: "url encoded segment",
			link: "/media/sessions/male%20female/call%201.wav",
			want: "/srv/mousetube/media/sessions/male female/call 1.wav",
		},
		{
			name: "dot segments collapsed",
			link: "/media/sessions/../sessions/42/./call.wav",
			want: "/srv/mousetube/media/sessions/42/call.wav",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.link)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tc.want), got)
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := newTestResolver()
	first, err := r.Resolve("/media/a/b.wav")
	require.NoError(t, err)
	second, err := r.Resolve("/media/a/b.wav")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveEmptyLink(t *testing.T) {
	r := newTestResolver()
	for _, link := range []string{"", "   "} {
		_, err := r.Resolve(link)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestIsTempPath(t *testing.T) {
	r := newTestResolver()

	assert.True(t, r.IsTempPath("/srv/mousetube/temp/upload_8f3a/call.wav"))
	assert.False(t, r.IsTempPath("/srv/mousetube/media/sessions/42/call.wav"))
	assert.False(t, r.IsTempPath("/srv/mousetube/temp-other/call.wav"))
	assert.False(t, r.IsTempPath("/srv/mousetube"))
}
