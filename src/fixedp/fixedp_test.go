package fixedp

import "testing"

func TestConvert(t *testing.T) {
	specs := []struct {
		in       int
		truncOut int
		roundOut int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{-1, -1, -1},
		{63, 63, 63},
		{-20, -20, -20},
	}
	for i, spec := range specs {
		fp := Itofp(spec.in)
		if got := fp.Fptoi(); got != spec.truncOut {
			t.Errorf("[spec %d] Fptoi(%v) = %v; want %v", i, spec.in, got, spec.truncOut)
		}
		if got := fp.Fptoi_round(); got != spec.roundOut {
			t.Errorf("[spec %d] Fptoi_round(%v) = %v; want %v", i, spec.in, got, spec.roundOut)
		}
	}
}

func TestRounding(t *testing.T) {
	// 2.5 rounds away from zero in both directions
	half := Itofp(5).Divi(2)
	if got := half.Fptoi_round(); got != 3 {
		t.Errorf("round(2.5) = %v; want 3", got)
	}
	if got := half.Fptoi(); got != 2 {
		t.Errorf("trunc(2.5) = %v; want 2", got)
	}
	nhalf := Itofp(-5).Divi(2)
	if got := nhalf.Fptoi_round(); got != -3 {
		t.Errorf("round(-2.5) = %v; want -3", got)
	}
}

func TestMulDivWiden(t *testing.T) {
	// 100 * 100 overflows 32 bits if the intermediate is not widened
	a := Itofp(100)
	if got := a.Mul(a).Fptoi(); got != 10000 {
		t.Errorf("100*100 = %v; want 10000", got)
	}
	if got := Itofp(10000).Div(a).Fptoi(); got != 100 {
		t.Errorf("10000/100 = %v; want 100", got)
	}
}

func TestLoadAvgCoeff(t *testing.T) {
	// 59/60 and 1/60 are the load average coefficients; their sum must
	// round back to one fixed-point unit within 1 ulp.
	c1 := Itofp(59).Div(Itofp(60))
	c2 := Itofp(1).Div(Itofp(60))
	sum := c1.Add(c2)
	if d := sum - F; d < -1 || d > 1 {
		t.Errorf("59/60 + 1/60 = %v; want %v within 1 ulp", sum, F)
	}
}

func TestMixedOps(t *testing.T) {
	x := Itofp(7).Divi(2) // 3.5
	if got := x.Addi(2).Fptoi(); got != 5 {
		t.Errorf("3.5+2 trunc = %v; want 5", got)
	}
	// -0.5 rounds away from zero
	if got := x.Subi(4).Fptoi_round(); got != -1 {
		t.Errorf("3.5-4 round = %v; want -1", got)
	}
	y := Itofp(-1).Divi(2)
	if got := y.Fptoi_round(); got != -1 {
		t.Errorf("round(-0.5) = %v; want -1", got)
	}
	if got := x.Muli(2).Fptoi(); got != 7 {
		t.Errorf("3.5*2 = %v; want 7", got)
	}
}
