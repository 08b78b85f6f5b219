package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/gateway"
)

const maxGestureLine = 1024 * 1024

// replay applies one gesture per line of r and writes one reply per line to
// w. Blank lines and lines starting with # are skipped. Rejected gestures are
// reported and the script continues; a fatal reply stops it.
func (a *app) replay(ctx context.Context, r io.Reader, w io.Writer) error {
	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	session := gateway.NewSession(engine,
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(a.registry.CoreMetrics()))

	enc := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxGestureLine)

	line, applied, rejected := 0, 0, 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.WrapTransient(err, "main", "replay", "read gesture script")
		}

		var g gateway.Gesture
		if err := json.Unmarshal(text, &g); err != nil {
			return errors.WrapInvalid(fmt.Errorf("line %d: %w", line, err), "main", "replay", "decode gesture")
		}

		reply := session.Handle(ctx, g)
		if err := enc.Encode(reply); err != nil {
			return errors.WrapTransient(err, "main", "replay", "write reply")
		}
		if reply.OK {
			applied++
			continue
		}
		rejected++
		if reply.Class == errors.ErrorFatal.String() {
			return errors.WrapFatal(fmt.Errorf("line %d: %w", line, session.Err()),
				"main", "replay", "apply gesture")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WrapInvalid(err, "main", "replay", "read gesture script")
	}

	a.logger.Info("Replay finished", "gestures", applied+rejected, "applied", applied, "rejected", rejected)
	return nil
}
