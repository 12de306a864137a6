// Package tlbhwmock holds a hand-maintained, mockgen-shaped mock of
// tlbhw.Hardware so fault-handler tests elsewhere in the module can assert
// exact Write/Random/FlushAll calls without a real CPU or the FlatHardware
// reference implementation's own bookkeeping getting in the way.
package tlbhwmock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"vmcore/tlbhw"
)

// MockHardware is a mock of the tlbhw.Hardware interface.
type MockHardware struct {
	ctrl     *gomock.Controller
	recorder *MockHardwareMockRecorder
}

// MockHardwareMockRecorder is the mock recorder for MockHardware.
type MockHardwareMockRecorder struct {
	mock *MockHardware
}

// NewMockHardware creates a new mock instance.
func NewMockHardware(ctrl *gomock.Controller) *MockHardware {
	mock := &MockHardware{ctrl: ctrl}
	mock.recorder = &MockHardwareMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockHardware) EXPECT() *MockHardwareMockRecorder {
	return m.recorder
}

// Write mocks base method.
func (m *MockHardware) Write(hi tlbhw.EntryHi, lo tlbhw.EntryLo, slot int) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Write", hi, lo, slot)
}

// Write indicates an expected call of Write.
func (mr *MockHardwareMockRecorder) Write(hi, lo, slot interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Write", reflect.TypeOf((*MockHardware)(nil).Write), hi, lo, slot)
}

// Random mocks base method.
func (m *MockHardware) Random(hi tlbhw.EntryHi, lo tlbhw.EntryLo) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Random", hi, lo)
}

// Random indicates an expected call of Random.
func (mr *MockHardwareMockRecorder) Random(hi, lo interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Random", reflect.TypeOf((*MockHardware)(nil).Random), hi, lo)
}

// FlushAll mocks base method.
func (m *MockHardware) FlushAll() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "FlushAll")
}

// FlushAll indicates an expected call of FlushAll.
func (mr *MockHardwareMockRecorder) FlushAll() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FlushAll", reflect.TypeOf((*MockHardware)(nil).FlushAll))
}

var _ tlbhw.Hardware = (*MockHardware)(nil)
