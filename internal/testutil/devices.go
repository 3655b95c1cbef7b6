package testutil

import (
	"fmt"

	"github.com/hupe1980/eagerctx/core"
)

// DeviceListBuilder provides a fluent helper for constructing device lists.
// Example:
//
//	devices := NewDeviceListBuilder().CPU(1).GPU(2).Build()
//
// Devices are local ("/job:localhost/replica:0/task:0") unless Task is used.
type DeviceListBuilder struct {
	job     string
	task    int
	devices []core.DeviceInfo
	counts  map[string]int
}

// NewDeviceListBuilder creates an empty builder for localhost task 0.
func NewDeviceListBuilder() *DeviceListBuilder {
	return &DeviceListBuilder{job: "localhost", counts: map[string]int{}}
}

// Task switches subsequently added devices to job/task (chainable).
func (b *DeviceListBuilder) Task(job string, task int) *DeviceListBuilder {
	b.job, b.task = job, task
	b.counts = map[string]int{}
	return b
}

// CPU appends n CPU devices (chainable).
func (b *DeviceListBuilder) CPU(n int) *DeviceListBuilder { return b.add("CPU", n) }

// GPU appends n GPU devices (chainable).
func (b *DeviceListBuilder) GPU(n int) *DeviceListBuilder { return b.add("GPU", n) }

func (b *DeviceListBuilder) add(typ string, n int) *DeviceListBuilder {
	for i := 0; i < n; i++ {
		idx := b.counts[typ]
		b.counts[typ]++
		b.devices = append(b.devices, core.DeviceInfo{
			Name: fmt.Sprintf("/job:%s/replica:0/task:%d/device:%s:%d", b.job, b.task, typ, idx),
			Type: typ,
		})
	}
	return b
}

// Build returns the device list.
func (b *DeviceListBuilder) Build() []core.DeviceInfo {
	out := make([]core.DeviceInfo, len(b.devices))
	copy(out, b.devices)
	return out
}
