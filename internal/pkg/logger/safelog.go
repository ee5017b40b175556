package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Yat-Muk/prism-clash/internal/pkg/sanitizer"
)

// SafeError 錯誤字段，錯誤信息中的鏈接會被脫敏
// net/http 的錯誤帶有完整請求地址，訂閱令牌會因此洩漏到日誌中
func SafeError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", sanitizer.Text(err.Error()))
}

// Safe 返回一個把 error 字段統一脫敏的 logger
func Safe(l *zap.Logger) *zap.Logger {
	return l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &safeCore{Core: c}
	}))
}

type safeCore struct {
	zapcore.Core
}

func (c *safeCore) With(fields []zapcore.Field) zapcore.Core {
	return &safeCore{Core: c.Core.With(mask(fields))}
}

func (c *safeCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *safeCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = sanitizer.Text(ent.Message)
	return c.Core.Write(ent, mask(fields))
}

func mask(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				f = zap.String(f.Key, sanitizer.Text(err.Error()))
			}
		case f.Type == zapcore.StringType:
			f.String = sanitizer.Text(f.String)
		}
		out[i] = f
	}
	return out
}
