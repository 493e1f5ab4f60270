package ocr

import "testing"

func TestMapBoxToDisplay(t *testing.T) {
	// preprocessed image is 2000x1000, shown at 500x250
	got := MapBoxToDisplay(Box{X0: 400, Y0: 200, X1: 800, Y1: 400}, 2000, 1000, 500, 250)
	want := Box{X0: 100, Y0: 50, X1: 200, Y1: 100}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestMapBoxToDisplayDegenerateSource(t *testing.T) {
	if got := MapBoxToDisplay(Box{X0: 1, Y0: 1, X1: 2, Y1: 2}, 0, 0, 100, 100); got != (Box{}) {
		t.Fatalf("expected zero box got %+v", got)
	}
}
