package exports_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/redhatinsights/deid-export-go/exports"
)

var _ = Describe("Query", func() {
	DescribeTable("quoting numeric strings",
		func(in interface{}, expected string) {
			Expect(exports.QuoteNumeric(in, testLog)).To(Equal(expected))
		},
		Entry("integer string", "1", `"1"`),
		Entry("decimal string", "1.1", `"1.1"`),
		Entry("trailing point", "12.", `"12."`),
		Entry("two points", "1.1.1", "1.1.1"),
		Entry("word", "test", "test"),
		Entry("mixed", "S001", "S001"),
		Entry("empty", "", ""),
		Entry("non-string number", 5, `"5"`),
		Entry("non-string bool", true, "true"),
	)

	It("joins terms", func() {
		f := exports.NewFilter(testLog).Eq("label", "123").EqQuoted("info.export.origin_id", "abc")
		Expect(f.String()).To(Equal(`label="123",info.export.origin_id="abc"`))
		Expect(exports.NewFilter(testLog).Eq("code", "S1").String()).To(Equal("code=S1"))
	})
})
