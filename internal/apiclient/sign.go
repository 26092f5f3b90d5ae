package apiclient

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Signer computes per-request signature headers. The production
// implementation executes the platform's client-side signing routine inside
// the live authenticated page; tests substitute a stub.
type Signer interface {
	Sign(ctx context.Context, uri string, body any) (map[string]string, error)
}

// Evaluator runs a script in the authenticated page and decodes its result.
// *browser.Surface satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// CookieSource reads the current session cookies on demand.
type CookieSource interface {
	Cookies(ctx context.Context) (map[string]string, error)
}

// PageSigner fulfills Signer by invoking window._webmsxyw in the live page.
// The signing algorithm belongs to the target application's client-side code
// and is not reproducible outside an authenticated browser context.
type PageSigner struct {
	page    Evaluator
	cookies CookieSource
}

// NewPageSigner builds a signer bound to the live surface.
func NewPageSigner(page Evaluator, cookies CookieSource) *PageSigner {
	return &PageSigner{page: page, cookies: cookies}
}

type pageSignature struct {
	XS string          `json:"X-s"`
	XT json.RawMessage `json:"X-t"`
}

// timestamp renders X-t as digits whether the page returned it as a JSON
// number or a string.
func (p pageSignature) timestamp() string {
	return strings.Trim(string(p.XT), `"`)
}

// Sign computes the X-S / X-T / X-S-Common / X-B3-Traceid header set for one
// request. It must complete before the caller's next navigation action; the
// surface is single-owner so the session loop guarantees that ordering.
func (s *PageSigner) Sign(ctx context.Context, uri string, body any) (map[string]string, error) {
	bodyJSON := "null"
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal sign body: %w", err)
		}
		bodyJSON = string(raw)
	}

	var sig pageSignature
	expr := fmt.Sprintf("window._webmsxyw(%s, %s)", strconv.Quote(uri), bodyJSON)
	if err := s.page.Evaluate(ctx, expr, &sig); err != nil {
		return nil, fmt.Errorf("invoke page signer: %w", err)
	}

	var b1 string
	if err := s.page.Evaluate(ctx, `window.localStorage.getItem("b1") || ""`, &b1); err != nil {
		return nil, fmt.Errorf("read local storage b1: %w", err)
	}

	cookies, err := s.cookies.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cookies for signing: %w", err)
	}

	return assembleHeaders(cookies["a1"], b1, sig.XS, sig.timestamp()), nil
}

// commonPayload is the canonical blob encoded into X-S-Common. Field order is
// part of the wire format.
type commonPayload struct {
	S0  int    `json:"s0"`
	S1  string `json:"s1"`
	X0  string `json:"x0"`
	X1  string `json:"x1"`
	X2  string `json:"x2"`
	X3  string `json:"x3"`
	X4  string `json:"x4"`
	X5  string `json:"x5"`
	X6  string `json:"x6"`
	X7  string `json:"x7"`
	X8  string `json:"x8"`
	X9  string `json:"x9"`
	X10 string `json:"x10"`
}

func assembleHeaders(a1, b1, xs, xt string) map[string]string {
	common := commonPayload{
		S0: 3,
		X0: "1",
		X1: "3.7.8-2",
		X2: "Mac OS",
		X3: "xhs-pc-web",
		X4: "4.37.2",
		X5: a1,
		X6: xt,
		X7: xs,
		X8: b1,
	}
	// commonPayload contains only marshalable fields.
	blob, _ := json.Marshal(common)

	return map[string]string{
		"X-S":          xs,
		"X-T":          xt,
		"X-S-Common":   base64.StdEncoding.EncodeToString(blob),
		"X-B3-Traceid": traceID(),
	}
}

// traceID returns 16 lowercase hex characters.
func traceID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure leaves a constant id; the header is opaque to us.
		return "0000000000000000"
	}
	return fmt.Sprintf("%016x", buf)
}
