package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrTransport marks failures to reach the endpoint or read its response:
// dial errors, timeouts, non-2xx HTTP statuses.
var ErrTransport = errors.New("transport error")

// ErrDecode marks responses whose body is not a well-formed envelope or
// whose data does not match the expected shape.
var ErrDecode = errors.New("decode error")

// RemoteError is returned when the endpoint answered with an envelope whose
// code is not CodeOK.
type RemoteError struct {
	Code int
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Msg)
}

// GetEnvelope issues a GET to url and decodes the envelope. When out is
// non-nil and the envelope is successful, its data is decoded into out.
func GetEnvelope(ctx context.Context, client *http.Client, url string, out any) (*Envelope, error) {
	return doEnvelope(ctx, client, http.MethodGet, url, out)
}

// PostEnvelope issues a body-less POST to url and decodes the envelope.
func PostEnvelope(ctx context.Context, client *http.Client, url string, out any) (*Envelope, error) {
	return doEnvelope(ctx, client, http.MethodPost, url, out)
}

func doEnvelope(ctx context.Context, client *http.Client, method, url string, out any) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s %s", method, url), ErrTransport)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.Mark(errors.Newf("http %s: %d", url, resp.StatusCode), ErrTransport)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %s", url), ErrTransport)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode envelope from %s", url), ErrDecode)
	}
	if !env.OK() {
		return &env, &RemoteError{Code: env.Code, Msg: env.Msg}
	}
	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return &env, errors.Mark(errors.Newf("empty data from %s", url), ErrDecode)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, errors.Mark(errors.Wrapf(err, "decode data from %s", url), ErrDecode)
		}
	}
	return &env, nil
}
