//go:build chiaki && cgo

package chiaki

/*
#cgo LDFLAGS: -lchiaki
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

int chiaki_lib_init(void);

void *chiaki_python_session_create(const char *host, const char *regist_key_hex,
	const char *rp_key_hex, const uint8_t *psn_account_id, bool is_ps5,
	int resolution_preset, int fps_preset);
bool chiaki_python_session_start(void *sess);
bool chiaki_python_session_wait_connected(void *sess, int timeout_ms);
bool chiaki_python_session_is_connected(void *sess);
bool chiaki_python_session_set_controller(void *sess, uint32_t buttons,
	int16_t left_x, int16_t left_y, int16_t right_x, int16_t right_y,
	uint8_t l2_state, uint8_t r2_state);
size_t chiaki_python_session_get_frame(void *sess, uint8_t *buffer, size_t buffer_size);
size_t chiaki_python_session_get_frame_ex(void *sess, uint8_t *buffer, size_t buffer_size, uint64_t *seq_out);
size_t chiaki_python_session_get_iframe(void *sess, uint8_t *buffer, size_t buffer_size);
bool chiaki_python_session_has_iframe(void *sess);
void chiaki_python_session_clear_iframe(void *sess);
bool chiaki_python_session_request_idr(void *sess);
void chiaki_python_session_stop(void *sess);
void chiaki_python_session_destroy(void *sess);
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/engine"
)

const (
	waitSlice    = 100 * time.Millisecond
	quitInterval = 250 * time.Millisecond
)

var (
	libOnce sync.Once
	libErr  error
)

func initLibrary() error {
	libOnce.Do(func() {
		if code := C.chiaki_lib_init(); code != 0 {
			libErr = fmt.Errorf("chiaki: library init failed with code %d", int(code))
		}
	})
	return libErr
}

// Engine opens native sessions.
type Engine struct{}

// New returns the native engine.
func New() *Engine { return &Engine{} }

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// Create implements engine.Engine.
func (e *Engine) Create(info engine.ConnectInfo) (engine.Handle, error) {
	if err := initLibrary(); err != nil {
		return nil, err
	}

	host := C.CString(info.Host)
	defer C.free(unsafe.Pointer(host))
	regist := C.CString(registKeyString(info.RegistKey))
	defer C.free(unsafe.Pointer(regist))
	rpKey := C.CString(rpKeyString(info.RPKey))
	defer C.free(unsafe.Pointer(rpKey))
	account := (*C.uint8_t)(C.CBytes(info.AccountID[:]))
	defer C.free(unsafe.Pointer(account))

	sess := C.chiaki_python_session_create(host, regist, rpKey, account,
		C.bool(info.PS5), C.int(info.Resolution), C.int(info.FPS))
	if sess == nil {
		return nil, fmt.Errorf("chiaki: session init failed for %s", info.Host)
	}
	info.Callbacks.Log(engine.LogInfo, "session created for "+info.Host)
	return &handle{sess: sess, cb: info.Callbacks, quitDone: make(chan struct{})}, nil
}

// handle guards the native pointer: reads hold mu.RLock, Destroy holds the
// write lock so no call can race with the free.
type handle struct {
	mu   sync.RWMutex
	sess unsafe.Pointer
	cb   engine.Callbacks

	watchOnce sync.Once
	stopWatch chan struct{}
	quitDone  chan struct{}
}

func (h *handle) acquire() (unsafe.Pointer, error) {
	h.mu.RLock()
	if h.sess == nil {
		h.mu.RUnlock()
		return nil, engine.ErrHandleClosed
	}
	return h.sess, nil
}

func (h *handle) release() { h.mu.RUnlock() }

func (h *handle) Start() error {
	s, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()
	if !bool(C.chiaki_python_session_start(s)) {
		return fmt.Errorf("%w: session start", engine.ErrRejected)
	}
	return nil
}

func (h *handle) WaitConnected(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		s, err := h.acquire()
		if err != nil {
			return false, err
		}
		slice := waitSlice
		if remaining := time.Until(deadline); remaining < slice {
			slice = remaining
		}
		ok := bool(C.chiaki_python_session_wait_connected(s, C.int(slice.Milliseconds())))
		h.release()
		if ok {
			h.cb.Emit(engine.Event{Type: engine.EventConnected})
			h.watchQuit()
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// watchQuit reports a quit event once the wrapper drops its connected flag
// without Stop having been called.
func (h *handle) watchQuit() {
	h.watchOnce.Do(func() {
		h.stopWatch = make(chan struct{})
		go func() {
			defer close(h.quitDone)
			t := time.NewTicker(quitInterval)
			defer t.Stop()
			for {
				select {
				case <-h.stopWatch:
					return
				case <-t.C:
				}
				if !h.IsConnected() {
					h.cb.Emit(engine.Event{Type: engine.EventQuit, Reason: "connection lost"})
					return
				}
			}
		}()
	})
}

func (h *handle) endWatch() {
	h.watchOnce.Do(func() { close(h.quitDone) })
	if h.stopWatch != nil {
		select {
		case <-h.stopWatch:
		default:
			close(h.stopWatch)
		}
		<-h.quitDone
	}
}

func (h *handle) IsConnected() bool {
	s, err := h.acquire()
	if err != nil {
		return false
	}
	defer h.release()
	return bool(C.chiaki_python_session_is_connected(s))
}

func (h *handle) SetController(st engine.ControllerState) error {
	s, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()
	if !bool(C.chiaki_python_session_is_connected(s)) {
		return engine.ErrNotConnected
	}
	ok := C.chiaki_python_session_set_controller(s, C.uint32_t(st.Buttons),
		C.int16_t(st.LeftX), C.int16_t(st.LeftY), C.int16_t(st.RightX), C.int16_t(st.RightY),
		C.uint8_t(st.L2), C.uint8_t(st.R2))
	if !bool(ok) {
		return fmt.Errorf("%w: controller state", engine.ErrRejected)
	}
	return nil
}

func (h *handle) RequestIDR() error {
	s, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()
	if !bool(C.chiaki_python_session_is_connected(s)) {
		return engine.ErrNotConnected
	}
	if !bool(C.chiaki_python_session_request_idr(s)) {
		return fmt.Errorf("%w: IDR request", engine.ErrRejected)
	}
	return nil
}

func (h *handle) HasIFrame() bool {
	s, err := h.acquire()
	if err != nil {
		return false
	}
	defer h.release()
	return bool(C.chiaki_python_session_has_iframe(s))
}

func bufPtr(buf []byte) (*C.uint8_t, C.size_t) {
	if len(buf) == 0 {
		return nil, 0
	}
	return (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))
}

func (h *handle) IFrame(buf []byte) (int, error) {
	s, err := h.acquire()
	if err != nil {
		return 0, err
	}
	defer h.release()
	p, n := bufPtr(buf)
	if p == nil {
		return 0, nil
	}
	return int(C.chiaki_python_session_get_iframe(s, p, n)), nil
}

func (h *handle) ClearIFrame() error {
	s, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()
	C.chiaki_python_session_clear_iframe(s)
	return nil
}

func (h *handle) Frame(buf []byte) (int, error) {
	s, err := h.acquire()
	if err != nil {
		return 0, err
	}
	defer h.release()
	p, n := bufPtr(buf)
	if p == nil {
		return 0, nil
	}
	return int(C.chiaki_python_session_get_frame(s, p, n)), nil
}

func (h *handle) FrameWithSequence(buf []byte) (int, uint64, error) {
	s, err := h.acquire()
	if err != nil {
		return 0, 0, err
	}
	defer h.release()
	p, n := bufPtr(buf)
	if p == nil {
		return 0, 0, nil
	}
	var seq C.uint64_t
	size := C.chiaki_python_session_get_frame_ex(s, p, n, &seq)
	return int(size), uint64(seq), nil
}

func (h *handle) Stop() error {
	h.endWatch()
	s, err := h.acquire()
	if err != nil {
		return err
	}
	defer h.release()
	C.chiaki_python_session_stop(s)
	log.Debug().Msg("native session joined")
	return nil
}

func (h *handle) Destroy() error {
	h.endWatch()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return engine.ErrHandleClosed
	}
	C.chiaki_python_session_destroy(h.sess)
	h.sess = nil
	return nil
}
