// Package diag collects structured error information: where an error
// surfaced, when, and on what host. It feeds the failure side of the
// result.Result outcomes without ever raising itself.
package diag

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/srediag/shmvars/pkg/result"
)

// Info is a snapshot of a single error occurrence.
type Info struct {
	Error    string            `json:"error"`
	Location string            `json:"location"`
	Time     time.Time         `json:"time"`
	Params   map[string]any    `json:"params,omitempty"`
	Host     map[string]string `json:"host,omitempty"`
}

// Mask selects which Info fields are blanked before the snapshot leaves
// the process, for reports that cross a trust boundary.
type Mask struct {
	Params bool
	Host   bool
}

// Collector captures error info. Host details are gathered once at
// construction; collection failures degrade to an empty host map.
type Collector struct {
	hostInfo map[string]string
}

// NewCollector returns a Collector with cached host information.
func NewCollector() *Collector {
	c := &Collector{hostInfo: map[string]string{}}
	if hi, err := host.Info(); err == nil {
		c.hostInfo = map[string]string{
			"hostname":       hi.Hostname,
			"os":             hi.OS,
			"platform":       hi.Platform,
			"platform_ver":   hi.PlatformVersion,
			"kernel_version": hi.KernelVersion,
			"kernel_arch":    hi.KernelArch,
		}
	}
	return c
}

// Capture records err together with the caller's source location.
func (c *Collector) Capture(err error, params map[string]any, mask Mask) Info {
	info := Info{
		Error:    fmt.Sprintf("%v", err),
		Location: callerLocation(2),
		Time:     time.Now(),
	}
	if !mask.Params {
		info.Params = params
	}
	if !mask.Host {
		info.Host = c.hostInfo
	}
	return info
}

// Failure wraps err into a failure outcome whose payload is the captured
// Info, attributed to context.
func (c *Collector) Failure(err error, context string) result.Result {
	r := result.Fail(err, context)
	info := c.Capture(err, nil, Mask{})
	info.Location = callerLocation(2)
	r.Data = info
	return r
}

func callerLocation(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	fn := "???"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return fmt.Sprintf("'%s', line %d, in %s", file, line, fn)
}
