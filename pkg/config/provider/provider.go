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

// Package provider reads raw configuration bytes from a file or a
// key/value store and signals changes.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Type names a configuration source.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ParseType parses a provider name. Empty means file.
func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider is a configuration source.
type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads the current raw configuration.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the configuration
	// changes. The channel closes when ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases the provider's connections.
	Close() error
}

// Config selects and addresses a provider.
type Config struct {
	Type Type

	// Path is a file path or a key path.
	Path string

	// Endpoints are the store addresses. Defaults per type.
	Endpoints []string

	// DialTimeout bounds the first connection to a remote store.
	DialTimeout time.Duration
}

// DefaultEndpoints returns the local address of each store.
func DefaultEndpoints(t Type) []string {
	switch t {
	case TypeConsul:
		return []string{"localhost:8500"}
	case TypeEtcd:
		return []string{"localhost:2379"}
	case TypeZookeeper:
		return []string{"localhost:2181"}
	default:
		return nil
	}
}

// New creates the provider cfg describes.
func New(cfg Config) (Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints(cfg.Type)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	switch cfg.Type {
	case TypeFile, "":
		return NewFileProvider(cfg.Path)
	case TypeConsul:
		return NewConsulProvider(cfg.Endpoints[0], cfg.Path)
	case TypeEtcd:
		return NewEtcdProvider(cfg.Endpoints, cfg.Path, cfg.DialTimeout)
	case TypeZookeeper:
		return NewZookeeperProvider(cfg.Endpoints, cfg.Path, cfg.DialTimeout)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// notify sends a change signal without blocking; one pending signal is
// enough to trigger a reload.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
