// errors.go — таксономия ошибок ядра.
package model

import (
	"errors"
	"fmt"
)

// ErrNotFound — элемент отсутствует, истёк или его артефакт утрачен.
// Причины намеренно не различаются.
var ErrNotFound = errors.New("элемент не найден или истёк")

// ErrInvalidInput — некорректные входные данные события.
var ErrInvalidInput = errors.New("некорректные входные данные")

// ArtifactError — ошибка записи или удаления артефакта на диске.
type ArtifactError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("артефакт %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// DeliveryError — соединение не приняло рассылку.
type DeliveryError struct {
	RoomID string
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("доставка в комнату %s соединению %s: %v", e.RoomID, e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SweepCycleError — непредвиденный сбой цикла очистки.
type SweepCycleError struct {
	Cause any
}

func (e *SweepCycleError) Error() string {
	return fmt.Sprintf("сбой цикла очистки: %v", e.Cause)
}

// Unwrap возвращает исходную ошибку, если причиной паники была ошибка.
func (e *SweepCycleError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}
