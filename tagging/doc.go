// Package tagging evaluates sequence-tagging (token classification) predictions,
// such as named-entity recognition, one batch at a time.
//
// A Scorer is fed with evaluation batches (per-example loss, gold tag ids,
// predicted tag ids and a 0/1 padding mask) and, at the end of the run,
// produces an ordered Report of metrics:
//
//   - AccuracyScorer: accuracy, loss.
//   - EntityF1Scorer: precision, recall, f1, loss.
//   - EntityF1AccuracyScorer: accuracy, precision, recall, f1, loss.
//   - CoNLLScorer: conll_acc, conll_f1, conll_p, conll_r, accuracy, precision, recall, f1, loss.
//
// Entity-level metrics are computed over spans decoded from BIO/BIOES tag
// strings (see DecodeSpans), using the inverse of the LabelMapping given at
// construction.
//
// Example:
//
//	mapping := tagging.MustNewLabelMapping("O", "B-PER", "I-PER", "B-LOC", "I-LOC")
//	scorer, err := tagging.NewEntityF1AccuracyScorer(mapping)
//	if err != nil {
//		panic(err)
//	}
//	for batch := range batches {
//		if err := scorer.Update(batch); err != nil {
//			panic(err)
//		}
//	}
//	report, err := scorer.Results()
//	if err != nil {
//		panic(err)
//	}
//	fmt.Println(report)
package tagging
