package svm

import (
	"context"

	"shroudvm.org/shroud/scramble"
)

// Word is the unit of the operand stack and of locals.
// Ints are sign extended, floats hold their 32 bit pattern sign extended,
// doubles hold their raw 64 bit pattern and objects hold a Ref.
type Word = int64

// StackSize is the capacity of the operand stack.
const StackSize = 256

// frame is the state of one call to Execute.
type frame struct {
	ctx    context.Context
	stack  [StackSize]Word
	sp     int
	pc     int
	n      int
	locals []Word
	tabs   *Tables
	// try is the number of open try regions.
	try    int
	halt   Halt
	stream scramble.Stream
	pins   pinSet
}

func (f *frame) reset(ctx context.Context, locals []Word, tabs *Tables, n int) {
	f.ctx = ctx
	f.sp = 0
	f.pc = 0
	f.n = n
	f.locals = locals
	f.tabs = tabs
	f.try = 0
	f.halt = HaltNone
}

// result is the word returned when the frame stops.
func (f *frame) result() Word {
	if f.sp > 0 {
		return f.stack[f.sp-1]
	}
	return 0
}

func (f *frame) stop(h Halt) bool {
	f.halt = h
	return false
}

func (f *frame) canPush(n int) bool {
	return f.sp+n <= StackSize
}

func (f *frame) has(n int) bool {
	return f.sp >= n
}

func (f *frame) push(x Word) {
	f.stack[f.sp] = x
	f.sp++
}

func (f *frame) pop() Word {
	f.sp--
	return f.stack[f.sp]
}

func (f *frame) peek() Word {
	return f.stack[f.sp-1]
}

// jump moves the program counter to target. Targets outside the program end it.
func (f *frame) jump(target Word) {
	if target < 0 || target >= Word(f.n) {
		f.pc = f.n
		return
	}
	f.pc = int(target)
}

func (f *frame) validLocal(i Word) bool {
	return i >= 0 && i < Word(len(f.locals))
}
