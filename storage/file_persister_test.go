package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilePersister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		path         string
		existingData string
		data         string
	}{
		{
			name: "just_file",
			path: "/summary.txt",
			data: "pages: 1 page(s) measured, 0 failed",
		},
		{
			name: "with_dir",
			path: "/out/spaceport/summary.txt",
			data: "Score.Score = 12 objects",
		},
		{
			name:         "truncates",
			path:         "/summary.txt",
			existingData: "a much longer summary from the previous run",
			data:         "short",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			if tt.existingData != "" {
				require.NoError(t, afero.WriteFile(fs, tt.path, []byte(tt.existingData), 0o600))
			}

			l := &LocalFilePersister{Fs: fs}
			require.NoError(t, l.Persist(context.Background(), tt.path, strings.NewReader(tt.data)))

			isDir, err := afero.IsDir(fs, tt.path)
			require.NoError(t, err)
			assert.False(t, isDir)

			bb, err := afero.ReadFile(fs, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(bb))
		})
	}
}
