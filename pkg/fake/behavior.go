/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fake

import (
	"sync"
)

// MockedFunction records the inputs a fake API method was invoked with and
// plays back a programmable output or error queue.
type MockedFunction[I any, O any] struct {
	mu sync.Mutex

	calledWith []*I
	output     *O
	errs       []error
}

// Reset must be called between tests otherwise tests will pollute each other.
func (m *MockedFunction[I, O]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calledWith = nil
	m.output = nil
	m.errs = nil
}

// Invoke records the input and returns the next queued error, or the
// programmed output.
func (m *MockedFunction[I, O]) Invoke(input *I) (*O, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calledWith = append(m.calledWith, input)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.output != nil {
		return m.output, nil
	}
	return new(O), nil
}

// Output programs the value returned by subsequent calls.
func (m *MockedFunction[I, O]) Output(output *O) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = output
}

// Error queues errors returned in order before the programmed output; a nil
// entry yields a success.
func (m *MockedFunction[I, O]) Error(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// CalledWith returns the recorded inputs.
func (m *MockedFunction[I, O]) CalledWith() []*I {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*I{}, m.calledWith...)
}

// Calls returns how many times the function was invoked.
func (m *MockedFunction[I, O]) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calledWith)
}
