package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// box is a raw detector output before embedding.
type box struct {
	bbox  [4]float32 // x1, y1, x2, y2 in source pixels
	score float32
}

// retinaFace wraps the det_10g RetinaFace model. Not safe for concurrent use.
type retinaFace struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32] // one per stride
	boxes     []*ort.Tensor[float32]
	threshold float32
	size      int
}

var retinaStrides = []int{8, 16, 32}

const (
	retinaInputSize  = 640
	retinaAnchors    = 2
	retinaNMSOverlap = 0.4
)

// Output tensor names of det_10g, grouped by stride 8, 16, 32. Landmark
// outputs are not bound.
var (
	retinaScoreNames = []string{"448", "471", "494"}
	retinaBoxNames   = []string{"451", "474", "497"}
)

func newRetinaFace(modelPath string, threshold float32, opts *ort.SessionOptions) (*retinaFace, error) {
	d := &retinaFace{threshold: threshold, size: retinaInputSize}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(d.size), int64(d.size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var names []string
	var outputs []ort.Value
	for i, stride := range retinaStrides {
		n := int64((d.size / stride) * (d.size / stride) * retinaAnchors)
		s, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor for stride %d: %w", stride, err)
		}
		d.scores = append(d.scores, s)
		b, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create box tensor for stride %d: %w", stride, err)
		}
		d.boxes = append(d.boxes, b)
		names = append(names, retinaScoreNames[i], retinaBoxNames[i])
		outputs = append(outputs, s, b)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{d.input}, outputs,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// detect runs the model on CHW input and returns boxes scaled to origW x origH.
func (d *retinaFace) detect(chw []float32, origW, origH int) ([]box, error) {
	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	sx := float32(origW) / float32(d.size)
	sy := float32(origH) / float32(d.size)

	var found []box
	for si, stride := range retinaStrides {
		scores := d.scores[si].GetData()
		boxes := d.boxes[si].GetData()
		fm := d.size / stride
		st := float32(stride)

		for idx := range scores {
			if scores[idx] < d.threshold {
				continue
			}
			cell := idx / retinaAnchors
			ax := float32(cell%fm) * st
			ay := float32(cell/fm) * st
			o := boxes[idx*4 : idx*4+4]
			found = append(found, box{
				bbox: [4]float32{
					clampF((ax-o[0]*st)*sx, 0, float32(origW)),
					clampF((ay-o[1]*st)*sy, 0, float32(origH)),
					clampF((ax+o[2]*st)*sx, 0, float32(origW)),
					clampF((ay+o[3]*st)*sy, 0, float32(origH)),
				},
				score: scores[idx],
			})
		}
	}
	return suppress(found, retinaNMSOverlap), nil
}

func (d *retinaFace) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range append(d.scores, d.boxes...) {
		t.Destroy()
	}
}

// suppress is greedy non-maximum suppression, highest score first.
func suppress(boxes []box, maxOverlap float32) []box {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].score > boxes[j].score })

	var kept []box
	for _, b := range boxes {
		ok := true
		for _, k := range kept {
			if iou(b.bbox, k.bbox) > maxOverlap {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	w := min(a[2], b[2]) - max(a[0], b[0])
	h := min(a[3], b[3]) - max(a[1], b[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
