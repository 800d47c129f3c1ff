package models_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	m "github.com/redhatinsights/deid-export-go/models"
)

var _ = Describe("CopyMap", func() {
	It("copies nested maps and slices", func() {
		orig := map[string]interface{}{
			"cohort": "A",
			"nested": map[string]interface{}{"tags": []interface{}{"x", map[string]interface{}{"k": 1}}},
		}
		cp := m.CopyMap(orig)
		Expect(cp).To(Equal(orig))

		cp["cohort"] = "B"
		cp["nested"].(map[string]interface{})["tags"].([]interface{})[1].(map[string]interface{})["k"] = 2
		Expect(orig["cohort"]).To(Equal("A"))
		Expect(orig["nested"].(map[string]interface{})["tags"].([]interface{})[1]).To(Equal(map[string]interface{}{"k": 1}))
	})

	It("keeps nil maps nil", func() {
		Expect(m.CopyMap(nil)).To(BeNil())
		Expect(m.CopyValue(42)).To(Equal(42))
	})
})
