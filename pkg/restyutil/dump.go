// Package restyutil dumps the raw http traffic of a resty client, it is how the markup of
// undocumented pages gets captured for test fixtures.
package restyutil

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// DumpMessages writes every completed request and its response to output, ids are
// "<n>-<method>-<last path segment>.txt". A nil output is a no-op.
func DumpMessages(client *resty.Client, output Output) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		n := atomic.AddUint64(&idcounter, 1)
		output.Write(messageId(n, res), formatHttpMessage(res))
		return nil
	})
}

func messageId(n uint64, res *resty.Response) string {
	segment := "root"
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		path := strings.Trim(res.RawResponse.Request.URL.Path, "/")
		if path != "" {
			segment = path[strings.LastIndex(path, "/")+1:]
		}
	}
	return fmt.Sprintf("%03d-%s-%s.txt", n, strings.ToLower(res.Request.Method), segment)
}
