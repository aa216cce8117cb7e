package assignment

import "errors"

var (
	ErrNotFound     = errors.New("assignment not found")
	ErrEmptyTitle   = errors.New("assignment title is empty")
	ErrEmptyStudent = errors.New("student name is empty")
	ErrEmptyFile    = errors.New("filename is empty")
)
