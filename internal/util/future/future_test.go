package future

import (
	"errors"
	"testing"
	"time"
)

func TestAwait(t *testing.T) {
	type testCase struct {
		name    string
		future  *Future[int]
		wantVal int
		wantErr bool
	}

	testCases := []testCase{
		{
			name:    "completed future",
			future:  FromValue(42),
			wantVal: 42,
			wantErr: false,
		},
		{
			name:    "failed future",
			future:  FromError[int](errors.New("failure")),
			wantVal: 0,
			wantErr: true,
		},
		{
			name: "delayed completion",
			future: Go(func() (int, error) {
				time.Sleep(5 * time.Millisecond)
				return 200, nil
			}),
			wantVal: 200,
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			val, err := tc.future.Await()

			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error: %v, got: %v", tc.wantErr, err)
			}

			if val != tc.wantVal {
				t.Fatalf("expected value: %d, got: %d", tc.wantVal, val)
			}
		})
	}
}

func TestCompleteIsOneShot(t *testing.T) {
	f := New[string]()
	f.Complete("first")
	f.Complete("second")
	f.Fail(errors.New("late failure"))

	v, err := f.Await()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "first" {
		t.Fatalf("expected value from first completion, got: %q", v)
	}
}

func TestAwaitTimeout(t *testing.T) {
	f := New[int]()

	_, _, ok := f.AwaitTimeout(time.Millisecond)
	if ok {
		t.Fatal("expected timeout on incomplete future")
	}

	f.Complete(7)
	v, err, ok := f.AwaitTimeout(time.Second)
	if !ok || err != nil || v != 7 {
		t.Fatalf("expected (7, nil, true), got (%d, %v, %v)", v, err, ok)
	}
}
