package observability

import "log/slog"

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func RunID[T ~string](id T) slog.Attr {
	return slog.String("run_id", string(id))
}

func Step(n int) slog.Attr {
	return slog.Int("step", n)
}

func Tool[T ~string](tool T) slog.Attr {
	return slog.String("tool", string(tool))
}

func Action(action string) slog.Attr {
	return slog.String("action", action)
}

func StatusAttr[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
