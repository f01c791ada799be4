package results

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/milvue/internal/http"
	"github.com/ligustah/milvue/internal/output"
	"github.com/ligustah/milvue/internal/params"
	"github.com/ligustah/milvue/internal/testutils"
	"github.com/ligustah/milvue/pkg/bundle"
)

type response struct {
	contentType string
	body        []byte
	err         error
	delay       time.Duration
}

type fakeDownloader struct {
	mu        sync.Mutex
	responses map[string]response
	inFlight  int
	maxFlight int
}

func (d *fakeDownloader) Download(ctx context.Context, studyKey string, query url.Values) (*http.Result, error) {
	d.mu.Lock()
	resp := d.responses[query.Get("inference_command")]
	d.inFlight++
	if d.inFlight > d.maxFlight {
		d.maxFlight = d.inFlight
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Result{
		ContentType: resp.contentType,
		Body:        io.NopCloser(bytes.NewReader(resp.body)),
	}, nil
}

func multipartResponse(t *testing.T, files ...testutils.ResultFile) response {
	t.Helper()
	sources := make([]bundle.Source, len(files))
	for i, f := range files {
		sources[i] = bundle.BytesSource(f.Name, f.Data)
	}
	body, ct, err := bundle.Encode(context.Background(), sources)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return response{contentType: ct, body: data}
}

func noOutput() response {
	return response{contentType: "application/json", body: []byte(`{"message":"no output"}`)}
}

type fixture struct {
	fanout *Fanout
	bucket *blob.Bucket
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, d Downloader, opts Options) fixture {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	opts.Logger = zap.New(core)
	return fixture{
		fanout: New(d, testutils.FakeReader{}, output.New(bucket), opts),
		bucket: bucket,
		logs:   logs,
	}
}

func sets(t *testing.T, cmds ...params.InferenceCommand) []params.Set {
	t.Helper()
	s, err := params.Build(params.Default(), cmds...)
	require.NoError(t, err)
	return s
}

func TestRunOneOutputOneEmpty(t *testing.T) {
	d := &fakeDownloader{responses: map[string]response{
		"smarturgences": multipartResponse(t, testutils.ResultFile{
			Name: "whatever.dcm",
			Data: testutils.FakeFile("1.2.3", "1.2.826.0.1.3680043.10.457.1"),
		}),
		"smartxpert": noOutput(),
	}}
	fx := newFixture(t, d, Options{})

	outcomes := fx.fanout.Run(context.Background(), "1.2.3", sets(t, params.SmartUrgences, params.SmartXpert))
	require.Len(t, outcomes, 2)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, []string{"1.2.3/1.2.826.0.1.3680043.10.457.1.dcm"}, outcomes[0].Files)
	assert.False(t, outcomes[0].Empty())

	require.NoError(t, outcomes[1].Err)
	assert.True(t, outcomes[1].Empty())

	assert.Equal(t, 1, fx.logs.FilterMessage("no output for parameter set").Len())
	entry := fx.logs.FilterMessage("no output for parameter set").All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "smartxpert", entry.ContextMap()["inference_command"])
}

func TestRunFailureDoesNotCancelSiblings(t *testing.T) {
	d := &fakeDownloader{responses: map[string]response{
		"smarturgences": {err: http.ErrServerError},
		"smartxpert": func() response {
			r := multipartResponse(t, testutils.ResultFile{Name: "x.dcm", Data: testutils.FakeFile("1.2.3", "9.9")})
			r.delay = 20 * time.Millisecond
			return r
		}(),
	}}
	fx := newFixture(t, d, Options{})

	outcomes := fx.fanout.Run(context.Background(), "1.2.3", sets(t, params.SmartUrgences, params.SmartXpert))

	assert.True(t, errors.Is(outcomes[0].Err, http.ErrServerError))
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, []string{"1.2.3/9.9.dcm"}, outcomes[1].Files)
}

func TestRunUnparsablePartWritesNothing(t *testing.T) {
	d := &fakeDownloader{responses: map[string]response{
		"smarturgences": multipartResponse(t,
			testutils.ResultFile{Name: "good.dcm", Data: testutils.FakeFile("1.2.3", "1.1")},
			testutils.ResultFile{Name: "bad.dcm", Data: []byte("garbage")},
		),
	}}
	fx := newFixture(t, d, Options{})

	outcomes := fx.fanout.Run(context.Background(), "1.2.3", sets(t, params.SmartUrgences))
	require.Error(t, outcomes[0].Err)
	assert.Empty(t, outcomes[0].Files)

	exists, err := fx.bucket.Exists(context.Background(), "1.2.3/1.1.dcm")
	require.NoError(t, err)
	assert.False(t, exists, "no part may be written when another part is unreadable")
}

func TestRunTruncatedResponse(t *testing.T) {
	full := multipartResponse(t, testutils.ResultFile{Name: "a.dcm", Data: bytes.Repeat([]byte("STUDY=1.2.3\n"), 50)})
	full.body = full.body[:len(full.body)/2]
	d := &fakeDownloader{responses: map[string]response{"smarturgences": full}}
	fx := newFixture(t, d, Options{})

	outcomes := fx.fanout.Run(context.Background(), "1.2.3", sets(t, params.SmartUrgences))
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, 1, fx.logs.FilterMessage("decode failed").Len())
}

func TestRunGlobalLimiter(t *testing.T) {
	slow := noOutput()
	slow.delay = 10 * time.Millisecond
	d := &fakeDownloader{responses: map[string]response{
		"smarturgences": slow,
		"smartxpert":    slow,
	}}
	fx := newFixture(t, d, Options{Limiter: semaphore.NewWeighted(1)})

	outcomes := fx.fanout.Run(context.Background(), "1.2.3", sets(t, params.SmartUrgences, params.SmartXpert))
	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, d.maxFlight)
}
