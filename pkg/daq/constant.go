package daq

import "errors"

// MaxRate is the protocol ceiling on the polling rate in Hz.
const MaxRate = 8.0

var ErrRateOutOfRange = errors.New("acquisition rate must be positive and at most 8 Hz")
var ErrSchedulerStopped = errors.New("scheduler is not running")
