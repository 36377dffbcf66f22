// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serialchan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialConn wraps a serial port
type SerialConn struct {
	port serial.Port
}

func (s *SerialConn) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConn) Close() error {
	return s.port.Close()
}

// OpenSerial opens a serial port connection (8N1)
func OpenSerial(portName string, baudRate int) (*SerialConn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w%s", portName, err, availablePortsHint())
	}

	// Drop anything the board printed before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", portName, err)
	}

	return &SerialConn{port: port}, nil
}

// OpenSerialWithRetry opens the port, retrying with exponential backoff while
// the device is absent (e.g. the board is still enumerating after a reboot)
func OpenSerialWithRetry(ctx context.Context, portName string, baudRate int, retries int, log logrus.FieldLogger) (*SerialConn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	var conn *SerialConn
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, err := OpenSerial(portName, baudRate)
		if err != nil {
			log.WithField("attempt", attempt).Warnf("serial open failed: %v", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ListPorts returns the serial devices present on the host
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func availablePortsHint() string {
	ports, err := ListPorts()
	if err != nil || len(ports) == 0 {
		return ""
	}
	return fmt.Sprintf(" (available: %s)", strings.Join(ports, ", "))
}
