package telemetry

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// numeric path segments are list and account ids, they are collapsed so span
// names stay low-cardinality.
var idSegment = regexp.MustCompile(`/\d+(/|$)`)

func spanName(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "http"
	}
	return fmt.Sprintf("http %s %s", req.Method, idSegment.ReplaceAllString(req.URL.Path, "/{id}$1"))
}

// InstrumentResty starts a span for every request made by client.
// Request and response bodies are never recorded since they carry account data.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), req.Method)
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// request attributes are set here since res.Request.RawRequest is nil in OnBeforeRequest
	span.SetName(spanName(res.Request.RawRequest))
	span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	span.SetAttributes(attribute.Bool("response.has_next_link", hasNextLink(res.Header())))

	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetName(spanName(req.RawRequest))
	if req.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
	}
}

var nextRel = regexp.MustCompile(`rel="?next"?`)

func hasNextLink(headers http.Header) bool {
	for _, v := range headers.Values("Link") {
		if nextRel.MatchString(v) {
			return true
		}
	}
	return false
}
