package log

import "go.uber.org/atomic"

// Binder 嵌入到编解码组件中，持有组件自己的 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 直接替换绑定的 Logger。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// BindComponent 绑定 logger 并附加组件名字段，logger 为 nil 时不做任何事。
func (w *Binder) BindComponent(logger *MLogger, component string) {
	if logger == nil {
		return
	}
	w.logger.Store(logger.With(FieldComponent(component)))
}

// Logger 返回绑定的 Logger，未绑定时使用全局 Logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return With()
}
