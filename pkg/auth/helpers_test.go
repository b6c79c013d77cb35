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

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://test-issuer.com"
	testAudience = "test-audience"
	testKeyID    = "test-key-id"
)

type testProvider struct {
	key       *rsa.PrivateKey
	validator *JWTValidator
}

func newTestProvider(t testing.TB) *testProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	v, err := NewJWTValidator(Config{
		Enabled:  true,
		JWKSURL:  srv.URL + "/.well-known/jwks.json",
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return &testProvider{key: key, validator: v}
}

func (p *testProvider) sign(t testing.TB, issuer string, ttl time.Duration, claims map[string]any) string {
	t.Helper()
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, issuer))
	require.NoError(t, token.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, token.Set(jwt.SubjectKey, "user-1"))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now().Add(-time.Minute)))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(ttl)))
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}

	priv, err := jwk.FromRaw(p.key)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, testKeyID))
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, priv))
	require.NoError(t, err)
	return string(signed)
}
