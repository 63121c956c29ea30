package stack_test

import (
	"testing"

	"futuresexec/internal/stack"
	"futuresexec/internal/stack/stacktest"
)

func newMemorySet(t *testing.T) stack.Set {
	broker := stack.NewMemory(stack.NameBroker, nil)
	contract := stack.NewMemory(stack.NameContract, broker)
	instrument := stack.NewMemory(stack.NameInstrument, contract)
	return stack.Set{Instrument: instrument, Contract: contract, Broker: broker}
}

func TestMemoryStack(t *testing.T) {
	stacktest.Run(t, newMemorySet)
}
