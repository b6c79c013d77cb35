// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeFile, false},
		{"file", TypeFile, false},
		{"consul", TypeConsul, false},
		{"etcd", TypeEtcd, false},
		{"zk", TypeZookeeper, false},
		{"zookeeper", TypeZookeeper, false},
		{"redis", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{Type: TypeFile})
	assert.Error(t, err)

	_, err = New(Config{Type: "redis", Path: "x"})
	assert.Error(t, err)

	p, err := New(Config{Path: "plancraft.yaml"})
	require.NoError(t, err)
	assert.Equal(t, TypeFile, p.Type())
	assert.True(t, filepath.IsAbs(p.(*FileProvider).Path()))

	assert.Equal(t, []string{"localhost:8500"}, DefaultEndpoints(TypeConsul))
	assert.Nil(t, DefaultEndpoints(TypeFile))
}

func TestFileProviderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plancraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0o644))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "version: \"1\"\n", string(data))

	missing, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, err = missing.Load(context.Background())
	assert.Error(t, err)
}

func TestFileProviderWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plancraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileProviderWatchClosed(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "plancraft.yaml"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	_, err = p.Watch(context.Background())
	assert.Error(t, err)
}

// fakeConsul serves a single KV key and answers blocking queries once
// the index moves past WaitIndex.
func fakeConsul(t *testing.T, key string, values <-chan string) *httptest.Server {
	t.Helper()
	var (
		mu    sync.Mutex
		index = 1
		value = "a: 1\n"
	)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/kv/"+key {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("index") != "" {
			select {
			case v := <-values:
				mu.Lock()
				index++
				value = v
				mu.Unlock()
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
		mu.Lock()
		i, v := index, value
		mu.Unlock()
		w.Header().Set("X-Consul-Index", fmt.Sprint(i))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"Key":%q,"Value":%q,"ModifyIndex":%d}]`, key, base64.StdEncoding.EncodeToString([]byte(v)), i)
	}))
}

func TestConsulProvider(t *testing.T) {
	values := make(chan string, 1)
	srv := fakeConsul(t, "plancraft/config", values)
	defer srv.Close()

	p, err := New(Config{
		Type:      TypeConsul,
		Path:      "plancraft/config",
		Endpoints: []string{strings.TrimPrefix(srv.URL, "http://")},
	})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, TypeConsul, p.Type())

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	values <- "a: 2\n"
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}
	data, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a: 2\n", string(data))
}

func TestConsulProviderMissingKey(t *testing.T) {
	srv := fakeConsul(t, "plancraft/config", nil)
	defer srv.Close()

	p, err := NewConsulProvider(strings.TrimPrefix(srv.URL, "http://"), "other/key")
	require.NoError(t, err)
	_, err = p.Load(context.Background())
	assert.Error(t, err)
}
