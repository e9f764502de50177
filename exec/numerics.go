package exec

import "math"

// Integer division and remainder. Every helper traps on a zero divisor; signed division also traps on overflow.

func I32DivS(i1, i2 int32) int32 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	if i1 == math.MinInt32 && i2 == -1 {
		panic(TrapIntegerOverflow)
	}
	return i1 / i2
}

func I32DivU(i1, i2 uint32) uint32 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	return i1 / i2
}

// I32RemS returns the remainder of i1/i2 with the sign of i1. MinInt32 % -1 is 0.
func I32RemS(i1, i2 int32) int32 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	if i2 == -1 {
		return 0
	}
	return i1 % i2
}

func I32RemU(i1, i2 uint32) uint32 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	return i1 % i2
}

func I64DivS(i1, i2 int64) int64 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	if i1 == math.MinInt64 && i2 == -1 {
		panic(TrapIntegerOverflow)
	}
	return i1 / i2
}

func I64DivU(i1, i2 uint64) uint64 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	return i1 / i2
}

func I64RemS(i1, i2 int64) int64 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	if i2 == -1 {
		return 0
	}
	return i1 % i2
}

func I64RemU(i1, i2 uint64) uint64 {
	if i2 == 0 {
		panic(TrapDivideByZero)
	}
	return i1 % i2
}

// Bool converts a comparison result to an i32.
func Bool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
