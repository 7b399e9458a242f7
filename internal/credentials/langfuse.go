package credentials

import (
	"context"
	"net/http"
	"strings"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/langfuse"
)

// Source is anything that hands out credentials by name, such as a node execution context.
type Source interface {
	Credentials(ctx context.Context, name string) (map[string]any, error)
}

// Keys are the validated fields of a Langfuse API credential.
type Keys struct {
	Host      string
	PublicKey string
	SecretKey string
}

// Authorization returns the basic auth header value for the keys.
func (k Keys) Authorization() string {
	return langfuse.BasicAuth(k.PublicKey, k.SecretKey)
}

// LangfuseKeys fetches the Langfuse credential and checks every field is a string.
func LangfuseKeys(ctx context.Context, src Source, node string) (Keys, error) {
	cred, err := src.Credentials(ctx, LangfuseAPI)
	if err != nil {
		return Keys{}, errx.New(err, http.StatusBadRequest, "langfuse credentials are not available").WithNode(node)
	}
	var k Keys
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"host", &k.Host},
		{"publicKey", &k.PublicKey},
		{"secretKey", &k.SecretKey},
	} {
		v, ok := cred[f.name].(string)
		if !ok {
			return Keys{}, errx.CredentialShape(node, f.name, errx.TypeName(cred[f.name]))
		}
		*f.dst = v
	}
	k.Host = strings.TrimRight(k.Host, "/")
	return k, nil
}

// Test checks the keys against the Langfuse API.
func Test(ctx context.Context, k Keys) error {
	c, err := langfuse.New(langfuse.Config{Host: k.Host, PublicKey: k.PublicKey, SecretKey: k.SecretKey})
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)
	return c.CheckAuth(ctx)
}
