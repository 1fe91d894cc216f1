package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, m Message) error {
	r.msgs = append(r.msgs, m)
	return r.err
}

func runBatch(t *testing.T, size, total int) *recorder {
	t.Helper()
	rec := &recorder{}
	b := NewBatcher(rec, size, "report (accounts %d-%d)", Options{})
	for i := 1; i <= total; i++ {
		b.Add(fmt.Sprintf("account %d", i))
		require.NoError(t, b.FlushIfDue(context.Background(), i == total))
	}
	return rec
}

func TestBatcher_FlushesAtChunkBoundariesAndEnd(t *testing.T) {
	rec := runBatch(t, 10, 25)

	require.Len(t, rec.msgs, 3)
	assert.Equal(t, "report (accounts 1-10)", rec.msgs[0].Title)
	assert.Equal(t, "report (accounts 11-20)", rec.msgs[1].Title)
	assert.Equal(t, "report (accounts 21-25)", rec.msgs[2].Title)
	assert.Equal(t, 5, strings.Count(rec.msgs[2].Body, "account "))
	assert.True(t, strings.HasPrefix(rec.msgs[2].Body, "account 21"+batchSeparator))
}

func TestBatcher_LargeChunkFlushesOnceAtEnd(t *testing.T) {
	rec := runBatch(t, 50, 7)

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "report (accounts 1-7)", rec.msgs[0].Title)
}

func TestBatcher_InvalidSizeFallsBackToDefault(t *testing.T) {
	b := NewBatcher(&recorder{}, 0, "%d-%d", Options{})
	assert.Equal(t, DefaultChunkSize, b.Size())
	b = NewBatcher(&recorder{}, -3, "%d-%d", Options{})
	assert.Equal(t, DefaultChunkSize, b.Size())
}

func TestBatcher_EmptyBufferNeverFlushes(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(rec, 2, "%d-%d", Options{})
	require.NoError(t, b.FlushIfDue(context.Background(), true))
	assert.Empty(t, rec.msgs)
}

func TestBatcher_ClearsBufferEvenWhenSinkFails(t *testing.T) {
	rec := &recorder{err: errors.New("offline")}
	b := NewBatcher(rec, 1, "%d-%d", Options{})
	b.Add("a")
	assert.Error(t, b.FlushIfDue(context.Background(), false))
	b.Add("b")
	assert.Error(t, b.FlushIfDue(context.Background(), true))
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, "2-2", rec.msgs[1].Title)
	assert.Equal(t, "b", rec.msgs[1].Body)
}

func TestMulti_JoinsErrors(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("down")}
	err := Multi{a, b}.Notify(context.Background(), Message{Title: "t"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 1)
}

func TestLogNotifier_WritesMessage(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Out: &buf}
	require.NoError(t, n.Notify(context.Background(), Message{Title: "T", Subtitle: "S", Body: "B"}))
	assert.Contains(t, buf.String(), "[T]")
	assert.Contains(t, buf.String(), "B")
}

func TestNewBark_Endpoints(t *testing.T) {
	b, err := NewBark("abc", "", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.URL(Message{Title: "t", Body: "b"}), "https://api.day.app/abc/t/b"))

	b, err = NewBark("abc", "https://bark.example.com/", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.URL(Message{Title: "t", Body: "b"}), "https://bark.example.com/abc/t/b"))

	b, err = NewBark("https://push.example.com/key/", "https://ignored", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.URL(Message{Title: "t", Body: "b"}), "https://push.example.com/key/t/b"))

	_, err = NewBark("  ", "", nil)
	assert.Error(t, err)
}

func TestBark_URLEncodesAndAddsOptions(t *testing.T) {
	b, err := NewBark("k", "", nil)
	require.NoError(t, err)
	raw := b.URL(Message{Title: "中奖 提醒", Body: "a/b\nc", Options: Options{Group: "aove", Sound: "bell", IsArchive: true}})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/k/中奖 提醒/a/b\nc", u.Path)
	assert.Contains(t, u.EscapedPath(), "a%2Fb")
	assert.Equal(t, "aove", u.Query().Get("group"))
	assert.Equal(t, "bell", u.Query().Get("sound"))
	assert.Equal(t, "1", u.Query().Get("isArchive"))
}

func TestBark_NotifyAndFallback(t *testing.T) {
	var gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code":200,"message":"success"}`))
	}))
	defer srv.Close()

	fallback := &recorder{}
	b, err := NewBark("dev", srv.URL, nil)
	require.NoError(t, err)
	b.Fallback = fallback

	require.NoError(t, b.Notify(context.Background(), Message{Title: "hi", Body: "there"}))
	assert.Equal(t, "/dev/hi/there", gotPath)
	assert.Empty(t, fallback.msgs)

	status = http.StatusInternalServerError
	assert.Error(t, b.Notify(context.Background(), Message{Title: "hi", Body: "there"}))
	require.Len(t, fallback.msgs, 1)
	assert.Equal(t, "hi", fallback.msgs[0].Subtitle)
}
