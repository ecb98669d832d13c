package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

const callerHeader = "X-Caller"

type client struct {
	baseURL string
	caller  string
	http    *http.Client
}

func newClient(ctx *cli.Context) (*client, error) {
	baseURL := strings.TrimSuffix(ctx.String(urlFlag.Name), "/")
	tlsCertPath := ctx.String(tlsCertFlag.Name)
	if strings.HasPrefix(baseURL, "http://") {
		tlsCertPath = ""
	}

	tlsConfig, err := getTLSConfig(tlsCertPath)
	if err != nil {
		return nil, err
	}

	return &client{
		baseURL: baseURL,
		caller:  ctx.String(callerFlag.Name),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}, nil
}

func post[T any](c *client, path string, body interface{}) (result T, err error) {
	var buf []byte
	if body != nil {
		if buf, err = json.Marshal(body); err != nil {
			return
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return
	}
	return do[T](c, req)
}

func get[T any](c *client, path string) (result T, err error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return
	}
	return do[T](c, req)
}

func do[T any](c *client, req *http.Request) (result T, err error) {
	req.Header.Set("Content-Type", "application/json")
	if len(c.caller) > 0 {
		req.Header.Set(callerHeader, c.caller)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errResp := struct {
			Error string `json:"error"`
		}{}
		if json.Unmarshal(buf, &errResp) == nil && len(errResp.Error) > 0 {
			err = fmt.Errorf("%s (status %d)", errResp.Error, resp.StatusCode)
			return
		}
		err = fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(buf))
		return
	}
	if len(buf) <= 0 {
		return
	}

	err = json.Unmarshal(buf, &result)
	return
}

func getTLSConfig(path string) (*tls.Config, error) {
	if len(path) <= 0 {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(buf); !ok {
		return nil, fmt.Errorf("failed to parse tls cert")
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    caCertPool,
	}, nil
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
