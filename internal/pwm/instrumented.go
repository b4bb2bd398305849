package pwm

import "context"

// DutyObserver is told about every successful duty write.
type DutyObserver func(channel int, duty uint16)

// Instrumented reports successful writes of the wrapped output.
type Instrumented struct {
	Output
	observe DutyObserver
}

// Instrument wraps out so that observe sees every applied duty.
func Instrument(out Output, observe DutyObserver) *Instrumented {
	return &Instrumented{Output: out, observe: observe}
}

func (i *Instrumented) SetDuty(ctx context.Context, channel int, duty uint16) error {
	if err := i.Output.SetDuty(ctx, channel, duty); err != nil {
		return err
	}
	if i.observe != nil {
		i.observe(channel, duty)
	}
	return nil
}

// Close closes the wrapped output.
func (i *Instrumented) Close() error {
	return Close(i.Output)
}
