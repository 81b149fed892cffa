package ambient

import "math"

// pad is the synthesized ambient source: four detuned sine oscillators at a
// fixed chord (fundamental, third, fifth, upper third), each through its own
// one-pole low-pass, summed under a very slow gain LFO for organic movement.
type pad struct {
	oscs    [4]oscillator
	filters [4]lowpass
	lfo     oscillator
	depth   float64
}

type oscillator struct {
	phase float64
	inc   float64
}

func (o *oscillator) next() float64 {
	v := math.Sin(o.phase)
	o.phase += o.inc
	if o.phase > 2*math.Pi {
		o.phase -= 2 * math.Pi
	}
	return v
}

type lowpass struct {
	alpha float64
	y     float64
}

func (f *lowpass) process(x float64) float64 {
	f.y += f.alpha * (x - f.y)
	return f.y
}

const (
	lfoHz    = 0.08
	lfoDepth = 0.15
	cutoffHz = 600
)

func newPad(fundamental float64, sampleRate int) *pad {
	ratios := [4]float64{1, 5.0 / 4, 3.0 / 2, 5.0 / 2}
	detunes := [4]float64{0.7, -0.9, 1.1, -0.5}

	p := &pad{depth: lfoDepth}
	rate := float64(sampleRate)
	for i := range p.oscs {
		freq := fundamental*ratios[i] + detunes[i]
		p.oscs[i] = oscillator{inc: 2 * math.Pi * freq / rate}
		p.filters[i] = lowpass{alpha: 1 - math.Exp(-2*math.Pi*cutoffHz/rate)}
	}
	p.lfo = oscillator{inc: 2 * math.Pi * lfoHz / rate}
	return p
}

// next produces one sample in the -1..1 range.
func (p *pad) next() float64 {
	var sum float64
	for i := range p.oscs {
		sum += p.filters[i].process(p.oscs[i].next())
	}
	sum /= float64(len(p.oscs))
	mod := 1 - p.depth + p.depth*(0.5+0.5*p.lfo.next())
	return sum * mod
}
