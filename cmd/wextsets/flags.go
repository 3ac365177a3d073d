package main

import "strings"

// flagSlice collects a flag that may be passed more than once.
type flagSlice []string

func (f *flagSlice) String() string {
	return strings.Join(*f, ",")
}

func (f *flagSlice) Set(value string) error {
	*f = append(*f, value)
	return nil
}
