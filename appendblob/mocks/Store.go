package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

func (_m *Store) AppendBlock(ctx context.Context, container string, name string, block []byte) error {
	ret := _m.Called(ctx, container, name, block)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, []byte) error); ok {
		r0 = rf(ctx, container, name, block)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (_m *Store) CreateObject(ctx context.Context, container string, name string) error {
	ret := _m.Called(ctx, container, name)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) error); ok {
		r0 = rf(ctx, container, name)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (_m *Store) ObjectExists(ctx context.Context, container string, name string) (bool, error) {
	ret := _m.Called(ctx, container, name)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, string, string) bool); ok {
		r0 = rf(ctx, container, name)
	} else {
		r0, _ = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, container, name)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (_m *Store) ListContainers(ctx context.Context) ([]string, error) {
	ret := _m.Called(ctx)

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context) []string); ok {
		r0 = rf(ctx)
	} else {
		r0, _ = ret.Get(0).([]string)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func (_m *Store) CreateContainer(ctx context.Context, name string) error {
	ret := _m.Called(ctx, name)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		r0 = rf(ctx, name)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
