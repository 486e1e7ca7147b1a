package main

import "errors"

var (
	ErrInputRequired  = errors.New("in path required")
	ErrOutputRequired = errors.New("out path required")
	ErrPlanRequired   = errors.New("plan path required")
)
