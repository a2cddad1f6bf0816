// Package logger provides adapters for popular logger libraries to work with clockdb's Logger interface.
//
// The adapters allow you to use your existing logger with clockdb without writing boilerplate.
// Note that the standard library's slog.Logger already implements clockdb.Logger directly.
//
// Example with zap:
//
//	import (
//	    "clockdb"
//	    "clockdb/buffer"
//	    "clockdb/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//	    log := logger.NewZap(zapLogger)
//
//	    bm, err := buffer.New(100, buffer.WithLogger(log))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer bm.Close()
//
//	    ix, err := clockdb.Open(bm, "relA", 0, clockdb.Integer, nil, clockdb.WithLogger(log))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer ix.Close()
//	}
package logger
